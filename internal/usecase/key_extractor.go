package usecase

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/chaniweb/backend/internal/domain"
	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Compiled regex patterns for name preprocessing
var (
	// Matches sizes like "1 litro", "180gr", "3x110 g", "2,5 kg". Runs on folded, lowercased text.
	nameSizePattern = regexp.MustCompile(`(?:(\d+)\s*x\s*)?(\d+(?:[.,]\d+)?)\s*(kg|kgs|kilos?|gramos?|grs?|g|mg|ml|mls|cc|cl|litros?|ltr|lts?|l|gal|galon(?:es)?|lbs?|libras?|oz|onzas?|und|unidades|un|u)\b`)

	// Everything that is not a lowercase letter or digit becomes a separator
	nonAlnumPattern = regexp.MustCompile(`[^a-z0-9]+`)
)

// defaultStopWords are dropped before key formation: Spanish and English
// fillers, packaging words and marketing terms.
var defaultStopWords = []string{
	// Fillers
	"de", "del", "la", "el", "los", "las", "y", "e", "en", "con", "sin", "para", "por", "al",
	"a", "an", "the", "of", "and", "with", "for", "in",
	// Packaging
	"lata", "latas", "botella", "funda", "fundas", "paquete", "pack", "caja", "bolsa", "frasco",
	"sachet", "doypack", "tarro", "pote", "envase", "tetrapak", "sobre", "display",
	"box", "bag", "bottle", "can", "jar", "pouch", "carton",
	// Marketing
	"oferta", "promo", "promocion", "nuevo", "nueva", "gratis", "precio", "especial", "ahorro",
	"value", "family", "bonus", "new", "improved", "premium", "select", "quality", "special",
}

// defaultBrands is the seed brand set for the Ecuadorian chains
var defaultBrands = []string{
	"aki", "alpina", "bonna", "facundo", "johnson", "la favorita", "la universal",
	"nestle", "oro", "pronaca", "real", "san carlos", "supermaxi", "tia", "toni", "van camps",
}

// KeyExtractorConfig holds configuration for the key extractor
type KeyExtractorConfig struct {
	SignificantTokens int
	QuantityTolerance float64
	StopWords         []string
	Brands            []string
}

// KeyExtractor derives product keys from normalized listings.
// It is immutable after construction and safe for concurrent use.
type KeyExtractor struct {
	normalizer        *UnitNormalizer
	stopWords         map[string]bool
	brands            map[string]bool
	significantTokens int
	tolerance         float64
	bucketWidth       float64
}

// NewKeyExtractor creates a key extractor. Configured stop words and brands
// extend the built-in sets.
func NewKeyExtractor(normalizer *UnitNormalizer, config KeyExtractorConfig) *KeyExtractor {
	n := config.SignificantTokens
	if n <= 0 {
		n = 4
	}

	tol := config.QuantityTolerance
	if tol <= 0 {
		tol = 0.05
	}

	stop := make(map[string]bool, len(defaultStopWords)+len(config.StopWords))
	for _, w := range append(append([]string{}, defaultStopWords...), config.StopWords...) {
		if w = foldText(w); w != "" {
			stop[w] = true
		}
	}

	brands := make(map[string]bool, len(defaultBrands)+len(config.Brands))
	for _, b := range append(append([]string{}, defaultBrands...), config.Brands...) {
		if b = foldText(b); b != "" {
			brands[b] = true
		}
	}

	return &KeyExtractor{
		normalizer:        normalizer,
		stopWords:         stop,
		brands:            brands,
		significantTokens: n,
		tolerance:         tol,
		bucketWidth:       math.Log(1 + 2*tol),
	}
}

// ExtractKey derives the ProductKey of a normalized listing
func (e *KeyExtractor) ExtractKey(l domain.NormalizedListing) domain.ProductKey {
	folded := foldText(l.Name)
	nameSize := e.extractNameSize(folded)
	brand, tokens := e.splitBrand(e.significant(nameSizePattern.ReplaceAllString(folded, " ")))

	if len(tokens) > e.significantTokens {
		tokens = tokens[:e.significantTokens]
	}
	sort.Strings(tokens)

	key := domain.ProductKey{
		Brand:    brand,
		Tokens:   tokens,
		Family:   l.Family,
		Bucket:   e.QuantityBucket(l.CanonicalQuantity),
		NameSize: nameSize,
	}

	if nameSize != nil && l.Family != domain.FamilyOpaque {
		key.SizeMismatch = !e.sameSize(nameSize, l)
	}

	return key
}

// QueryTokens returns the significant tokens of free text, brand tokens included
func (e *KeyExtractor) QueryTokens(text string) []string {
	folded := foldText(text)
	return e.significant(nameSizePattern.ReplaceAllString(folded, " "))
}

// QuantityBucket maps a canonical quantity onto a logarithmic bucket so that
// quantities within the tolerance of each other usually share a bucket.
func (e *KeyExtractor) QuantityBucket(q decimal.Decimal) int {
	f := q.InexactFloat64()
	if f <= 0 {
		return 0
	}
	return int(math.Round(math.Log(f) / e.bucketWidth))
}

// significant tokenizes folded text and drops stop words, unit words,
// numbers and single characters. Order is kept and duplicates removed.
func (e *KeyExtractor) significant(folded string) []string {
	words := strings.Fields(nonAlnumPattern.ReplaceAllString(folded, " "))

	seen := make(map[string]bool, len(words))
	tokens := make([]string, 0, len(words))
	for _, word := range words {
		if len(word) <= 1 || isNumeric(word) || e.stopWords[word] || e.normalizer.IsUnitToken(word) {
			continue
		}
		if seen[word] {
			continue
		}
		seen[word] = true
		tokens = append(tokens, word)
	}
	return tokens
}

// splitBrand removes the first recognized brand (one or two words) from tokens
func (e *KeyExtractor) splitBrand(tokens []string) (string, []string) {
	for i := range tokens {
		if i+1 < len(tokens) {
			if pair := tokens[i] + " " + tokens[i+1]; e.brands[pair] {
				rest := append(append([]string{}, tokens[:i]...), tokens[i+2:]...)
				return pair, rest
			}
		}
		if e.brands[tokens[i]] {
			rest := append(append([]string{}, tokens[:i]...), tokens[i+1:]...)
			return tokens[i], rest
		}
	}
	return "", tokens
}

// extractNameSize parses the last size mention in a folded name
func (e *KeyExtractor) extractNameSize(folded string) *domain.SizeToken {
	matches := nameSizePattern.FindAllStringSubmatch(folded, -1)
	if len(matches) == 0 {
		return nil
	}
	m := matches[len(matches)-1]

	qty, err := decimal.NewFromString(strings.ReplaceAll(m[2], ",", "."))
	if err != nil {
		return nil
	}
	if m[1] != "" {
		if count, err := decimal.NewFromString(m[1]); err == nil && count.IsPositive() {
			qty = qty.Mul(count)
		}
	}

	conv, err := e.normalizer.Normalize(qty, m[3])
	if err != nil {
		return nil
	}

	return &domain.SizeToken{
		Raw:               strings.TrimSpace(m[0]),
		Family:            conv.Family,
		CanonicalQuantity: qty.Mul(conv.Factor),
	}
}

// sameSize reports whether a size parsed from the name agrees with the structured fields
func (e *KeyExtractor) sameSize(size *domain.SizeToken, l domain.NormalizedListing) bool {
	if size.Family != l.Family {
		return false
	}
	if l.CanonicalQuantity.IsZero() {
		return size.CanonicalQuantity.IsZero()
	}
	diff := size.CanonicalQuantity.Sub(l.CanonicalQuantity).Abs()
	ratio := diff.Div(l.CanonicalQuantity).InexactFloat64()
	return ratio <= e.tolerance
}

// foldText strips diacritics, lowercases and collapses whitespace
func foldText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(foldAccents(s))), " ")
}

// foldAccents removes combining marks so "Atún" and "Atun" compare equal.
// A fresh transformer per call keeps it safe for concurrent use.
func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// isNumeric checks if a string contains only digits
func isNumeric(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}
