package models

import (
	"errors"
	"time"
)

var (
	ErrMissingTitle = errors.New("product title is required")
	ErrMissingLink  = errors.New("product link is required")
)

// Product is one scraped product page, keyed by its URL.
// Pointer fields are nullable: extraction failures resolve to nil, never to
// a zero value.
type Product struct {
	ID             int64       `json:"id,omitempty"`
	Link           string      `json:"link"`
	Title          string      `json:"title"`
	CurrentPrice   *float64    `json:"current_price"`
	OriginalPrice  *float64    `json:"original_price"`
	Discount       *float64    `json:"discount"`
	Rating         *float64    `json:"rating"`
	ReviewCount    *int        `json:"review_count"`
	Seller         *string     `json:"seller"`
	Shipping       *string     `json:"shipping"`
	Brand          *string     `json:"brand"`
	Description    *string     `json:"description"`
	ImageURLs      []string    `json:"image_urls"`
	ScrapedAt      time.Time   `json:"scraped_at"`
	Specifications []SpecEntry `json:"specifications"`

	// Phone attributes derived from the title.
	RAMGB            *int     `json:"ram_gb"`
	StorageGB        *int     `json:"storage_gb"`
	ScreenSizeInches *float64 `json:"screen_size_inches"`
	BatteryMAh       *int     `json:"battery_mah"`
	CameraMPMain     *int     `json:"camera_mp_main"`
	CameraMPSelfie   *int     `json:"camera_mp_selfie"` // no extraction source yet, always nil
	NetworkType      *string  `json:"network_type"`
	HasDualSim       bool     `json:"has_dual_sim"`
}

// SpecEntry is one key/value specification row. Category holds the section
// heading it came from, or "extracted" for attributes derived from the title.
type SpecEntry struct {
	Category  string  `json:"category"`
	SpecType  *string `json:"spec_type"`
	SpecKey   string  `json:"spec_key"`
	SpecValue string  `json:"spec_value"`
}

// Normalize maps empty strings and empty collections to nil so that
// validation and persistence see absent values uniformly.
func (p *Product) Normalize() {
	p.Seller = dropEmpty(p.Seller)
	p.Shipping = dropEmpty(p.Shipping)
	p.Brand = dropEmpty(p.Brand)
	p.Description = dropEmpty(p.Description)
	p.NetworkType = dropEmpty(p.NetworkType)
	if len(p.ImageURLs) == 0 {
		p.ImageURLs = nil
	}
	if len(p.Specifications) == 0 {
		p.Specifications = nil
	}
}

// Validate reports whether the record may be persisted. Title and link are
// the only required fields; everything else is best-effort.
func (p *Product) Validate() error {
	if p.Link == "" {
		return ErrMissingLink
	}
	if p.Title == "" {
		return ErrMissingTitle
	}
	return nil
}

func dropEmpty(s *string) *string {
	if s != nil && *s == "" {
		return nil
	}
	return s
}
