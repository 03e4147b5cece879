package usecase

import (
	"sort"

	"github.com/chaniweb/backend/internal/domain"
	"github.com/shopspring/decimal"
)

// EstimateLabel marks the synthetic reference price on every ranked member
const EstimateLabel = "estimated_reference_price"

// RankerConfig holds configuration for the ranker
type RankerConfig struct {
	EstimateFactor decimal.Decimal
}

// Ranker orders group members by price per unit and attaches summary figures
type Ranker struct {
	estimateFactor decimal.Decimal
}

// NewRanker creates a ranker. A non-positive factor falls back to 1.2.
func NewRanker(config RankerConfig) *Ranker {
	factor := config.EstimateFactor
	if !factor.IsPositive() {
		factor = decimal.RequireFromString("1.2")
	}
	return &Ranker{estimateFactor: factor}
}

// Rank sorts a group and computes best, average and stats. The input group is not modified.
func (r *Ranker) Rank(group domain.ProductGroup) domain.RankedGroup {
	ranked := domain.RankedGroup{
		Key:        group.Key,
		Comparable: true,
		Members:    []domain.RankedMember{},
	}
	if len(group.Members) == 0 {
		return ranked
	}

	members := make([]domain.NormalizedListing, len(group.Members))
	copy(members, group.Members)
	sortMembers(members)

	sum := decimal.Zero
	vendors := make(map[string]bool)
	for i, m := range members {
		if !m.Comparable {
			ranked.Comparable = false
		}
		sum = sum.Add(m.PricePerUnit)
		vendors[m.Supermarket] = true
		ranked.Members = append(ranked.Members, domain.RankedMember{
			NormalizedListing: m,
			Rank:              i + 1,
			Estimate:          r.estimate(m.Price),
		})
	}

	count := decimal.NewFromInt(int64(len(members)))
	first := ranked.Members[0]
	last := ranked.Members[len(ranked.Members)-1]

	ranked.Best = first
	ranked.Average = sum.DivRound(count, pricePerUnitPlaces)
	ranked.Stats = domain.GroupStats{
		MinPricePerUnit: first.PricePerUnit,
		MaxPricePerUnit: last.PricePerUnit,
		Spread:          last.PricePerUnit.Sub(first.PricePerUnit),
		VendorCount:     len(vendors),
		ListingCount:    len(members),
	}
	return ranked
}

// estimate derives the labelled display-only reference price
func (r *Ranker) estimate(price decimal.Decimal) domain.Estimate {
	ref := price.Mul(r.estimateFactor).Round(2)
	return domain.Estimate{
		Label:            EstimateLabel,
		Factor:           r.estimateFactor,
		ReferencePrice:   ref,
		EstimatedSavings: ref.Sub(price),
	}
}

// sortMembers orders listings by price per unit, then price, then
// supermarket name, then id. The last key makes the order total.
func sortMembers(members []domain.NormalizedListing) {
	sort.SliceStable(members, func(i, j int) bool {
		return lessMember(members[i], members[j])
	})
}

func lessMember(a, b domain.NormalizedListing) bool {
	if c := a.PricePerUnit.Cmp(b.PricePerUnit); c != 0 {
		return c < 0
	}
	if c := a.Price.Cmp(b.Price); c != 0 {
		return c < 0
	}
	if a.Supermarket != b.Supermarket {
		return a.Supermarket < b.Supermarket
	}
	return a.ID < b.ID
}
