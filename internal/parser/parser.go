package parser

import (
	"github.com/jumia-tools/phone-scraper/internal/models"
)

// Listing is the outcome of parsing one category page.
type Listing struct {
	ProductLinks []string
	NextPage     string
}

type Parser interface {
	ParseListing(pageURL string, html string) (*Listing, error)
	ParseProduct(pageURL string, html string) (*models.Product, error)
}
