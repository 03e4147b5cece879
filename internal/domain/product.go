package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

func init() {
	// Prices travel as JSON numbers to and from the catalog API and the UI.
	decimal.MarshalJSONWithoutQuotes = true
}

// ListingID is an opaque listing identifier. The catalog API emits integer
// ids while retailer feeds use strings, so both JSON forms are accepted.
type ListingID string

// UnmarshalJSON accepts a JSON string or number
func (id *ListingID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ListingID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("listing id must be a string or number: %w", err)
	}
	*id = ListingID(n.String())
	return nil
}

// String returns the raw identifier
func (id ListingID) String() string {
	return string(id)
}

// Listing is one retailer's offer for one product
type Listing struct {
	ID          ListingID       `json:"id"`
	Name        string          `json:"name"`
	Supermarket string          `json:"supermarket"`
	Price       decimal.Decimal `json:"price"`
	Quantity    decimal.Decimal `json:"quantity"`
	Unit        string          `json:"unit"`
	ImageURL    string          `json:"image_url,omitempty"`
}

// UnitFamily groups units that can be converted into each other
type UnitFamily string

const (
	FamilyMass   UnitFamily = "mass"
	FamilyVolume UnitFamily = "volume"
	FamilyCount  UnitFamily = "count"
	FamilyLength UnitFamily = "length"

	// FamilyOpaque marks listings kept with an unrecognized unit. Such
	// listings are never merged with anything.
	FamilyOpaque UnitFamily = "opaque"
)

// NormalizedListing is a Listing plus its price expressed per canonical unit
type NormalizedListing struct {
	Listing
	Family            UnitFamily      `json:"unit_family"`
	CanonicalUnit     string          `json:"canonical_unit"`
	CanonicalQuantity decimal.Decimal `json:"canonical_quantity"`
	PricePerUnit      decimal.Decimal `json:"price_per_unit"`
	Comparable        bool            `json:"comparable"`
}

// PricePerUnitDisplay rounds the price per unit to currency precision
func (n NormalizedListing) PricePerUnitDisplay() string {
	return n.PricePerUnit.StringFixed(2)
}

// SizeToken is a package size parsed out of a free-text product name
type SizeToken struct {
	Raw               string          `json:"raw"`
	Family            UnitFamily      `json:"unit_family"`
	CanonicalQuantity decimal.Decimal `json:"canonical_quantity"`
}

// ProductKey is the derived identity used to decide which listings are the same product
type ProductKey struct {
	Brand  string     `json:"brand,omitempty"`
	Tokens []string   `json:"tokens"`
	Family UnitFamily `json:"unit_family"`
	Bucket int        `json:"quantity_bucket"`

	// NameSize is kept for diagnostics only, the structured fields win.
	NameSize     *SizeToken `json:"name_size,omitempty"`
	SizeMismatch bool       `json:"size_mismatch,omitempty"`
}

// String renders the key in its canonical comparable form
func (k ProductKey) String() string {
	var buf bytes.Buffer
	buf.WriteString(k.Brand)
	buf.WriteByte('|')
	for i, t := range k.Tokens {
		if i > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(t)
	}
	buf.WriteByte('|')
	buf.WriteString(string(k.Family))
	buf.WriteByte('|')
	buf.WriteString(strconv.Itoa(k.Bucket))
	return buf.String()
}

// ProductGroup is a set of listings believed to reference the same product
type ProductGroup struct {
	Key     string              `json:"key"`
	Members []NormalizedListing `json:"members"`
	// Keys holds every distinct member key, ordered by key string
	Keys []ProductKey `json:"-"`
}

// Estimate is a synthetic display value derived from the listing price.
// It is never retailer-reported data.
type Estimate struct {
	Label            string          `json:"label"`
	Factor           decimal.Decimal `json:"factor"`
	ReferencePrice   decimal.Decimal `json:"reference_price"`
	EstimatedSavings decimal.Decimal `json:"estimated_savings"`
}

// RankedMember is a group member in ranking order
type RankedMember struct {
	NormalizedListing
	Rank     int      `json:"rank"`
	Estimate Estimate `json:"estimate"`
}

// GroupStats holds summary figures for a ranked group
type GroupStats struct {
	MinPricePerUnit decimal.Decimal `json:"min_price_per_unit"`
	MaxPricePerUnit decimal.Decimal `json:"max_price_per_unit"`
	Spread          decimal.Decimal `json:"spread"`
	VendorCount     int             `json:"vendor_count"`
	ListingCount    int             `json:"listing_count"`
}

// RankedGroup is a ProductGroup sorted ascending by price per unit
type RankedGroup struct {
	Key        string          `json:"key"`
	Comparable bool            `json:"comparable"`
	Members    []RankedMember  `json:"members"`
	Best       RankedMember    `json:"best"`
	Average    decimal.Decimal `json:"average_price_per_unit"`
	Stats      GroupStats      `json:"stats"`
}

// Query identifies either a listing or free text, never both
type Query struct {
	ListingID ListingID `json:"listing_id,omitempty"`
	Text      string    `json:"text,omitempty"`
}

// String renders the query for cache keys and logs
func (q Query) String() string {
	if q.ListingID != "" {
		return "listing:" + q.ListingID.String()
	}
	return "text:" + q.Text
}

// Comparison is the engine output for a single query against one snapshot
type Comparison struct {
	Query              Query            `json:"query"`
	CatalogFingerprint string           `json:"catalog_fingerprint"`
	Found              bool             `json:"found"`
	Groups             []RankedGroup    `json:"groups"`
	InvalidListings    []InvalidListing `json:"invalid_listings"`
	ExcludedCount      int              `json:"excluded_count"`
}

// Best returns the best offer of the first matched group
func (c Comparison) Best() (RankedMember, bool) {
	if !c.Found || len(c.Groups) == 0 {
		return RankedMember{}, false
	}
	return c.Groups[0].Best, true
}

// Diagnostic kinds for listings left out of normal comparison
const (
	DiagnosticInvalidListing   = "invalid_listing"
	DiagnosticUnrecognizedUnit = "unrecognized_unit"
)

// InvalidListing reports a listing excluded from grouping and why
type InvalidListing struct {
	Listing Listing `json:"listing"`
	Kind    string  `json:"kind"`
	Reason  string  `json:"reason"`
}

// Grouping is the outcome of one matching run over a catalog
type Grouping struct {
	Groups          []ProductGroup
	InvalidListings []InvalidListing
}

// Overview is every ranked group of one catalog snapshot
type Overview struct {
	CatalogFingerprint string           `json:"catalog_fingerprint"`
	Groups             []RankedGroup    `json:"groups"`
	InvalidListings    []InvalidListing `json:"invalid_listings"`
	ExcludedCount      int              `json:"excluded_count"`
}
