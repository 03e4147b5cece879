package usecase

import (
	"context"
	"sort"
	"strings"

	"github.com/chaniweb/backend/internal/domain"
	"github.com/rs/zerolog"
)

// ComparisonEngine answers queries against a catalog snapshot. It is pure:
// identical (catalog, query) pairs always produce identical comparisons.
type ComparisonEngine struct {
	matcher   *MatchingService
	ranker    *Ranker
	extractor *KeyExtractor
}

// NewComparisonEngine wires the matcher, ranker and key extractor together
func NewComparisonEngine(matcher *MatchingService, ranker *Ranker, extractor *KeyExtractor) *ComparisonEngine {
	return &ComparisonEngine{
		matcher:   matcher,
		ranker:    ranker,
		extractor: extractor,
	}
}

// EngineConfig gathers the settings of every engine stage
type EngineConfig struct {
	Keys     KeyExtractorConfig
	Matching MatchConfig
	Ranking  RankerConfig
}

// BuildComparisonEngine assembles the normalizer, key extractor, matcher and ranker
func BuildComparisonEngine(config EngineConfig, logger zerolog.Logger) *ComparisonEngine {
	normalizer := NewUnitNormalizer()
	extractor := NewKeyExtractor(normalizer, config.Keys)
	matcher := NewMatchingService(normalizer, extractor, config.Matching, logger)
	return NewComparisonEngine(matcher, NewRanker(config.Ranking), extractor)
}

// Compare runs a listing or free-text query. A query that matches nothing
// yields Found == false and no error. Cancellation yields an error and no result.
func (e *ComparisonEngine) Compare(ctx context.Context, catalog *domain.Catalog, query domain.Query) (domain.Comparison, error) {
	query, err := validateQuery(query)
	if err != nil {
		return domain.Comparison{}, err
	}

	grouping, err := e.matcher.Group(ctx, catalog.Listings())
	if err != nil {
		return domain.Comparison{}, err
	}

	result := domain.Comparison{
		Query:              query,
		CatalogFingerprint: catalog.Fingerprint(),
		Groups:             []domain.RankedGroup{},
		InvalidListings:    grouping.InvalidListings,
		ExcludedCount:      excludedCount(catalog.Len(), grouping.Groups),
	}

	var matched []domain.ProductGroup
	if query.ListingID != "" {
		matched = groupsForListing(grouping.Groups, query.ListingID)
	} else {
		matched = e.groupsForText(grouping, query.Text)
	}

	for _, g := range matched {
		result.Groups = append(result.Groups, e.ranker.Rank(g))
	}
	result.Found = len(result.Groups) > 0
	return result, nil
}

// Overview ranks every group of the snapshot
func (e *ComparisonEngine) Overview(ctx context.Context, catalog *domain.Catalog) (domain.Overview, error) {
	grouping, err := e.matcher.Group(ctx, catalog.Listings())
	if err != nil {
		return domain.Overview{}, err
	}

	overview := domain.Overview{
		CatalogFingerprint: catalog.Fingerprint(),
		Groups:             make([]domain.RankedGroup, 0, len(grouping.Groups)),
		InvalidListings:    grouping.InvalidListings,
		ExcludedCount:      excludedCount(catalog.Len(), grouping.Groups),
	}
	for _, g := range grouping.Groups {
		overview.Groups = append(overview.Groups, e.ranker.Rank(g))
	}
	return overview, nil
}

// validateQuery requires exactly one of listing id and text
func validateQuery(q domain.Query) (domain.Query, error) {
	q.ListingID = domain.ListingID(strings.TrimSpace(q.ListingID.String()))
	q.Text = strings.TrimSpace(q.Text)

	hasID := q.ListingID != ""
	hasText := q.Text != ""
	if hasID == hasText {
		return domain.Query{}, domain.ErrInvalidQuery
	}
	return q, nil
}

func excludedCount(total int, groups []domain.ProductGroup) int {
	grouped := 0
	for _, g := range groups {
		grouped += len(g.Members)
	}
	return total - grouped
}

func groupsForListing(groups []domain.ProductGroup, id domain.ListingID) []domain.ProductGroup {
	for _, g := range groups {
		for _, m := range g.Members {
			if m.ID == id {
				return []domain.ProductGroup{g}
			}
		}
	}
	return nil
}

type scoredGroup struct {
	group domain.ProductGroup
	score float64
}

// groupsForText keeps groups whose member names contain the folded query or
// whose tokens intersect the query tokens. Best matches come first.
func (e *ComparisonEngine) groupsForText(grouping *domain.Grouping, text string) []domain.ProductGroup {
	folded := foldText(text)
	queryTokens := e.extractor.QueryTokens(text)

	var scored []scoredGroup
	for _, g := range grouping.Groups {
		tokens := groupTokens(g)
		score := tokenCoverage(queryTokens, tokens)
		if folded != "" && containsName(g, folded) {
			score = 1
		}
		if score > 0 {
			scored = append(scored, scoredGroup{group: g, score: score})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].group.Key < scored[j].group.Key
	})

	out := make([]domain.ProductGroup, 0, len(scored))
	for _, s := range scored {
		out = append(out, s.group)
	}
	return out
}

// groupTokens collects key tokens and brand words of every member
func groupTokens(g domain.ProductGroup) map[string]bool {
	set := make(map[string]bool)
	for _, key := range g.Keys {
		for _, t := range key.Tokens {
			set[t] = true
		}
		for _, t := range strings.Fields(key.Brand) {
			set[t] = true
		}
	}
	return set
}

// tokenCoverage is the fraction of query tokens found in the group.
// A query token of 3+ chars also matches a longer token it prefixes.
func tokenCoverage(query []string, tokens map[string]bool) float64 {
	if len(query) == 0 {
		return 0
	}
	matched := 0
	for _, q := range query {
		if tokens[q] {
			matched++
			continue
		}
		if len(q) < 3 {
			continue
		}
		for t := range tokens {
			if strings.HasPrefix(t, q) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(query))
}

func containsName(g domain.ProductGroup, folded string) bool {
	for _, m := range g.Members {
		if strings.Contains(foldText(m.Name), folded) {
			return true
		}
	}
	return false
}
