package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"time"
)

// Catalog is an immutable snapshot of listings. The engine only ever reads it.
type Catalog struct {
	listings    []Listing
	fingerprint string
	fetchedAt   time.Time
}

// NewCatalog copies listings into a new snapshot
func NewCatalog(listings []Listing, fetchedAt time.Time) *Catalog {
	own := make([]Listing, len(listings))
	copy(own, listings)
	return &Catalog{
		listings:    own,
		fingerprint: fingerprint(own),
		fetchedAt:   fetchedAt,
	}
}

// Listings returns a copy of the snapshot contents
func (c *Catalog) Listings() []Listing {
	if c == nil {
		return nil
	}
	out := make([]Listing, len(c.listings))
	copy(out, c.listings)
	return out
}

// Len returns the number of listings in the snapshot
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.listings)
}

// Fingerprint identifies the snapshot contents. Equal listings in equal order
// produce equal fingerprints.
func (c *Catalog) Fingerprint() string {
	if c == nil {
		return fingerprint(nil)
	}
	return c.fingerprint
}

// FetchedAt returns when the snapshot was taken
func (c *Catalog) FetchedAt() time.Time {
	if c == nil {
		return time.Time{}
	}
	return c.fetchedAt
}

func fingerprint(listings []Listing) string {
	h := sha256.New()
	for _, l := range listings {
		for _, field := range []string{
			l.ID.String(), l.Name, l.Supermarket,
			l.Price.String(), l.Quantity.String(), l.Unit, l.ImageURL,
		} {
			io.WriteString(h, field)
			h.Write([]byte{0})
		}
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
