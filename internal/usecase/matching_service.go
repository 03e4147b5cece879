package usecase

import (
	"context"
	"errors"
	"sort"

	"github.com/chaniweb/backend/internal/domain"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Policies for listings whose unit is not in the vocabulary
const (
	UnrecognizedUnitExclude   = "exclude"
	UnrecognizedUnitSingleton = "singleton"
)

// MatchConfig holds configuration for the matching service
type MatchConfig struct {
	SimilarityThreshold    float64
	EnableFuzzyMatching    bool
	FuzzyEditDistance      int
	Workers                int
	UnrecognizedUnitPolicy string
	EnableDebugLogging     bool
}

// MatchingService partitions listings into product groups: exact key
// matches first, then fuzzy merges inside each (family, bucket) partition.
type MatchingService struct {
	normalizer          *UnitNormalizer
	extractor           *KeyExtractor
	similarityThreshold float64
	enableFuzzyMatching bool
	fuzzyEditDistance   int
	workers             int
	unrecognizedPolicy  string
	enableDebugLogging  bool
	logger              zerolog.Logger
}

// NewMatchingService creates a new matching service with the given configuration
func NewMatchingService(normalizer *UnitNormalizer, extractor *KeyExtractor, config MatchConfig, logger zerolog.Logger) *MatchingService {
	threshold := config.SimilarityThreshold
	if threshold <= 0 || threshold > 1 {
		threshold = 0.6 // Default Jaccard threshold
	}

	fuzzyDist := config.FuzzyEditDistance
	if fuzzyDist <= 0 {
		fuzzyDist = 1 // Default edit distance of 1
	}

	workers := config.Workers
	if workers <= 0 {
		workers = 4
	}

	policy := config.UnrecognizedUnitPolicy
	if policy != UnrecognizedUnitSingleton {
		policy = UnrecognizedUnitExclude
	}

	return &MatchingService{
		normalizer:          normalizer,
		extractor:           extractor,
		similarityThreshold: threshold,
		enableFuzzyMatching: config.EnableFuzzyMatching,
		fuzzyEditDistance:   fuzzyDist,
		workers:             workers,
		unrecognizedPolicy:  policy,
		enableDebugLogging:  config.EnableDebugLogging,
		logger:              logger.With().Str("component", "matcher").Logger(),
	}
}

// keyedListing is a normalized listing with its derived key
type keyedListing struct {
	listing domain.NormalizedListing
	key     domain.ProductKey
	keyStr  string
}

// exactGroup holds listings whose keys are identical
type exactGroup struct {
	key     string
	pk      domain.ProductKey
	members []domain.NormalizedListing
}

type partitionKey struct {
	family domain.UnitFamily
	bucket int
}

// Group partitions listings into product groups. Every valid listing lands
// in exactly one group; invalid listings are reported, not dropped silently.
// The result depends only on the listing set, not on input order.
func (s *MatchingService) Group(ctx context.Context, listings []domain.Listing) (*domain.Grouping, error) {
	result := &domain.Grouping{
		Groups:          []domain.ProductGroup{},
		InvalidListings: []domain.InvalidListing{},
	}

	partitions := make(map[partitionKey][]keyedListing)
	var opaque []keyedListing

	for _, l := range listings {
		normalized, err := s.normalizer.NormalizeListing(l)
		if err != nil {
			var unrecognized *domain.UnrecognizedUnitError
			if errors.As(err, &unrecognized) {
				result.InvalidListings = append(result.InvalidListings, domain.InvalidListing{
					Listing: l,
					Kind:    domain.DiagnosticUnrecognizedUnit,
					Reason:  err.Error(),
				})
				if s.unrecognizedPolicy == UnrecognizedUnitSingleton {
					normalized = s.normalizer.OpaqueListing(l)
					key := s.extractor.ExtractKey(normalized)
					opaque = append(opaque, keyedListing{listing: normalized, key: key, keyStr: key.String()})
				}
				continue
			}
			result.InvalidListings = append(result.InvalidListings, domain.InvalidListing{
				Listing: l,
				Kind:    domain.DiagnosticInvalidListing,
				Reason:  err.Error(),
			})
			continue
		}

		key := s.extractor.ExtractKey(normalized)
		if key.SizeMismatch && s.enableDebugLogging {
			s.logger.Debug().
				Str("listing_id", l.ID.String()).
				Str("name_size", key.NameSize.Raw).
				Str("quantity", l.Quantity.String()).
				Str("unit", l.Unit).
				Msg("name size disagrees with structured size")
		}

		pk := partitionKey{family: key.Family, bucket: key.Bucket}
		partitions[pk] = append(partitions[pk], keyedListing{listing: normalized, key: key, keyStr: key.String()})
	}

	pkeys := make([]partitionKey, 0, len(partitions))
	for pk := range partitions {
		pkeys = append(pkeys, pk)
	}
	sort.Slice(pkeys, func(i, j int) bool {
		if pkeys[i].family != pkeys[j].family {
			return pkeys[i].family < pkeys[j].family
		}
		return pkeys[i].bucket < pkeys[j].bucket
	})

	// Partitions are independent, so they are grouped in parallel.
	// Cancellation is observed between partitions.
	perPartition := make([][]domain.ProductGroup, len(pkeys))
	g := new(errgroup.Group)
	g.SetLimit(s.workers)
	for i, pk := range pkeys {
		i, pk := i, pk
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			perPartition[i] = s.groupPartition(partitions[pk])
			return nil
		})
	}
	if err := g.Wait(); err != nil || ctx.Err() != nil {
		cause := ctx.Err()
		if cause == nil {
			cause = err
		}
		return nil, domain.NewCanceledError(cause)
	}

	for _, groups := range perPartition {
		result.Groups = append(result.Groups, groups...)
	}

	sort.SliceStable(opaque, func(i, j int) bool {
		if opaque[i].listing.ID != opaque[j].listing.ID {
			return opaque[i].listing.ID < opaque[j].listing.ID
		}
		return opaque[i].keyStr < opaque[j].keyStr
	})
	for _, o := range opaque {
		result.Groups = append(result.Groups, domain.ProductGroup{
			Key:     o.keyStr + "#" + o.listing.ID.String(),
			Members: []domain.NormalizedListing{o.listing},
			Keys:    []domain.ProductKey{o.key},
		})
	}

	sort.SliceStable(result.Groups, func(i, j int) bool {
		return result.Groups[i].Key < result.Groups[j].Key
	})
	sort.SliceStable(result.InvalidListings, func(i, j int) bool {
		return result.InvalidListings[i].Listing.ID < result.InvalidListings[j].Listing.ID
	})

	if s.enableDebugLogging {
		s.logger.Debug().
			Int("listings", len(listings)).
			Int("partitions", len(pkeys)).
			Int("groups", len(result.Groups)).
			Int("invalid", len(result.InvalidListings)).
			Msg("grouping complete")
	}

	return result, nil
}

// groupPartition groups listings of one (family, bucket) partition
func (s *MatchingService) groupPartition(listings []keyedListing) []domain.ProductGroup {
	exact := make(map[string]*exactGroup)
	for _, kl := range listings {
		eg, ok := exact[kl.keyStr]
		if !ok {
			eg = &exactGroup{key: kl.keyStr, pk: kl.key}
			exact[kl.keyStr] = eg
		}
		eg.members = append(eg.members, kl.listing)
	}

	groups := make([]*exactGroup, 0, len(exact))
	for _, eg := range exact {
		groups = append(groups, eg)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].key < groups[j].key })

	// Candidate lookup by 3-character token prefix and suffix covers exact
	// token overlap, prefix abbreviations and single-edit typos at either end.
	index := make(map[string][]int)
	for i, eg := range groups {
		for _, anchor := range tokenAnchors(eg.pk.Tokens) {
			index[anchor] = append(index[anchor], i)
		}
	}

	uf := newUnionFind(len(groups))
	for i, eg := range groups {
		best := -1
		bestSim := 0.0
		for _, j := range candidates(index, eg.pk.Tokens, i) {
			sim := s.groupSimilarity(groups[i], groups[j])
			if sim < s.similarityThreshold {
				continue
			}
			// Candidates arrive in ascending key order, so the first of equal scores wins ties.
			if sim > bestSim {
				best, bestSim = j, sim
			}
		}
		if best >= 0 {
			if s.enableDebugLogging {
				s.logger.Debug().
					Str("key", eg.key).
					Str("partner", groups[best].key).
					Float64("similarity", bestSim).
					Msg("fuzzy merge")
			}
			uf.union(i, best)
		}
	}

	// Components keep the smallest member key, which is the first one seen.
	byRoot := make(map[int]*domain.ProductGroup)
	var order []int
	for i, eg := range groups {
		root := uf.find(i)
		pg, ok := byRoot[root]
		if !ok {
			pg = &domain.ProductGroup{Key: eg.key}
			byRoot[root] = pg
			order = append(order, root)
		}
		pg.Members = append(pg.Members, eg.members...)
		pg.Keys = append(pg.Keys, eg.pk)
	}

	out := make([]domain.ProductGroup, 0, len(order))
	for _, root := range order {
		pg := byRoot[root]
		sortMembers(pg.Members)
		out = append(out, *pg)
	}
	return out
}

// groupSimilarity scores two exact groups. Conflicting brands never merge.
// Arguments are ordered by key so the score is symmetric.
func (s *MatchingService) groupSimilarity(a, b *exactGroup) float64 {
	if a.pk.Brand != "" && b.pk.Brand != "" && a.pk.Brand != b.pk.Brand {
		return 0
	}
	if b.key < a.key {
		a, b = b, a
	}
	return s.jaccard(a.pk.Tokens, b.pk.Tokens)
}

// jaccard computes |A∩B| / |A∪B| over token sets. With fuzzy matching on,
// near-identical tokens count as shared after exact matches are taken.
func (s *MatchingService) jaccard(tokens1, tokens2 []string) float64 {
	if len(tokens1) == 0 || len(tokens2) == 0 {
		return 0
	}

	exact, _ := findIntersection(tokens1, tokens2)
	matched := exact
	if s.enableFuzzyMatching {
		matched += s.countFuzzyMatches(tokens1, tokens2)
	}

	// Fuzzy pairs collapse two distinct tokens into one shared element.
	union := findUnion(tokens1, tokens2) - (matched - exact)
	if union <= 0 {
		return 0
	}
	return float64(matched) / float64(union)
}

// countFuzzyMatches pairs tokens that are not exact matches but fall within
// the edit distance or share a prefix. Each token is paired at most once.
func (s *MatchingService) countFuzzyMatches(tokens1, tokens2 []string) int {
	set1 := make(map[string]bool, len(tokens1))
	for _, t := range tokens1 {
		set1[t] = true
	}
	set2 := make(map[string]bool, len(tokens2))
	for _, t := range tokens2 {
		set2[t] = true
	}

	used := make(map[string]bool)
	count := 0
	for _, t1 := range tokens1 {
		if set2[t1] {
			continue
		}
		for _, t2 := range tokens2 {
			if set1[t2] || used[t2] {
				continue
			}
			if fuzzyTokenMatch(t1, t2, s.fuzzyEditDistance) {
				used[t2] = true
				count++
				break
			}
		}
	}
	return count
}

// candidates returns indexes sharing a token anchor with tokens, ascending, excluding self
func candidates(index map[string][]int, tokens []string, self int) []int {
	seen := make(map[int]bool)
	var out []int
	for _, anchor := range tokenAnchors(tokens) {
		for _, j := range index[anchor] {
			if j == self || seen[j] {
				continue
			}
			seen[j] = true
			out = append(out, j)
		}
	}
	sort.Ints(out)
	return out
}

// tokenAnchors returns the first and last three characters of every token.
// A single edit leaves at least one of the two intact in tokens of 7+ chars.
func tokenAnchors(tokens []string) []string {
	out := make([]string, 0, 2*len(tokens))
	for _, t := range tokens {
		if len(t) <= 3 {
			out = append(out, "p:"+t, "s:"+t)
			continue
		}
		out = append(out, "p:"+t[:3], "s:"+t[len(t)-3:])
	}
	return out
}

// fuzzyTokenMatch checks if two tokens are similar within the edit distance
// threshold, or one is a prefix abbreviation of the other.
func fuzzyTokenMatch(token1, token2 string, threshold int) bool {
	if token1 == token2 {
		return true
	}

	// Only apply fuzzy matching to tokens of 4+ chars to avoid false positives
	if len(token1) < 4 || len(token2) < 4 {
		return false
	}

	short, long := token1, token2
	if len(short) > len(long) {
		short, long = long, short
	}
	if long[:len(short)] == short {
		return true
	}

	// Quick length check - if lengths differ by more than threshold, can't match
	if len(long)-len(short) > threshold {
		return false
	}

	return levenshteinDistance(token1, token2) <= threshold
}

// levenshteinDistance calculates the edit distance between two strings
func levenshteinDistance(s1, s2 string) int {
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	r1 := []rune(s1)
	r2 := []rune(s2)
	m := len(r1)
	n := len(r2)

	// Use two rows instead of full matrix for space efficiency
	prev := make([]int, n+1)
	curr := make([]int, n+1)

	for j := 0; j <= n; j++ {
		prev[j] = j
	}

	for i := 1; i <= m; i++ {
		curr[0] = i
		for j := 1; j <= n; j++ {
			cost := 0
			if r1[i-1] != r2[j-1] {
				cost = 1
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[n]
}

// findIntersection returns the count of common tokens and the list of matched tokens
func findIntersection(tokens1, tokens2 []string) (int, []string) {
	set := make(map[string]bool)
	for _, t := range tokens1 {
		set[t] = true
	}

	var matched []string
	seen := make(map[string]bool)
	for _, t := range tokens2 {
		if set[t] && !seen[t] {
			matched = append(matched, t)
			seen[t] = true
		}
	}

	return len(matched), matched
}

// findUnion returns the count of unique tokens across both sets
func findUnion(tokens1, tokens2 []string) int {
	set := make(map[string]bool)
	for _, t := range tokens1 {
		set[t] = true
	}
	for _, t := range tokens2 {
		set[t] = true
	}
	return len(set)
}

// unionFind is a disjoint-set forest with path compression and union by rank
type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

// union merges the sets of a and b. The smaller index becomes the root on
// equal rank so component roots stay stable.
func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	switch {
	case u.rank[ra] < u.rank[rb]:
		u.parent[ra] = rb
	case u.rank[ra] > u.rank[rb]:
		u.parent[rb] = ra
	default:
		if rb < ra {
			ra, rb = rb, ra
		}
		u.parent[rb] = ra
		u.rank[ra]++
	}
}
