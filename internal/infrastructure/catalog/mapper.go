package catalog

import (
	"strings"

	"github.com/chaniweb/backend/internal/domain"
	"github.com/shopspring/decimal"
)

// Defaults applied by the ingestion backend when a name carries no size
const (
	defaultQuantity = 1
	defaultUnit     = "unidad"
)

// ProductRecord is one product as served by the catalog API's /products/ endpoint.
// The stored price_per_unit is ignored; the engine always recomputes it.
type ProductRecord struct {
	ID           domain.ListingID    `json:"id"`
	ExternalID   string              `json:"external_id"`
	Name         string              `json:"name"`
	Supermarket  string              `json:"supermarket"`
	Price        decimal.Decimal     `json:"price"`
	Quantity     decimal.NullDecimal `json:"quantity"`
	Unit         *string             `json:"unit"`
	ImageURL     *string             `json:"image_url"`
	PricePerUnit decimal.NullDecimal `json:"price_per_unit"`
}

// MapToListing converts a wire record into a domain Listing. Records without
// an id fall back to "supermarket:external_id". A missing quantity defaults
// to one, and a missing unit alongside it to "unidad".
func MapToListing(r ProductRecord) domain.Listing {
	id := r.ID
	if id == "" && r.ExternalID != "" {
		id = domain.ListingID(strings.ToLower(strings.TrimSpace(r.Supermarket)) + ":" + r.ExternalID)
	}

	unit := ""
	if r.Unit != nil {
		unit = strings.TrimSpace(*r.Unit)
	}

	quantity := r.Quantity.Decimal
	if !r.Quantity.Valid {
		quantity = decimal.NewFromInt(defaultQuantity)
		if unit == "" {
			unit = defaultUnit
		}
	}

	imageURL := ""
	if r.ImageURL != nil {
		imageURL = *r.ImageURL
	}

	return domain.Listing{
		ID:          id,
		Name:        strings.TrimSpace(r.Name),
		Supermarket: strings.TrimSpace(r.Supermarket),
		Price:       r.Price,
		Quantity:    quantity,
		Unit:        unit,
		ImageURL:    imageURL,
	}
}

// MapToListings converts a page of wire records
func MapToListings(records []ProductRecord) []domain.Listing {
	listings := make([]domain.Listing, 0, len(records))
	for _, r := range records {
		listings = append(listings, MapToListing(r))
	}
	return listings
}
