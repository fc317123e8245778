package parser

import (
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/jumia-tools/phone-scraper/internal/models"
)

const specTypeExtracted = "extracted"

// JumiaParser extracts listing links and product records from Jumia pages.
type JumiaParser struct {
	logger *slog.Logger

	ramPattern     *regexp.Regexp
	storagePattern *regexp.Regexp
	screenPattern  *regexp.Regexp
	batteryPattern *regexp.Regexp
	cameraPattern  *regexp.Regexp
	networkPattern *regexp.Regexp
}

func NewJumiaParser(logger *slog.Logger) *JumiaParser {
	return &JumiaParser{
		logger: logger.With("component", "parser"),

		ramPattern: regexp.MustCompile(`(\d{1,2})\s*gb\s*ram`),
		// TODO: without a rom/storage suffix this can match the RAM digits
		// ("8GB 128GB" vs "128GB storage") - needs a ruling from the data
		// owners before changing.
		storagePattern: regexp.MustCompile(`(\d{2,4})\s*gb\s*(rom|storage)?`),
		screenPattern:  regexp.MustCompile(`(\d{1,2}\.\d{1,2})\s*"`),
		batteryPattern: regexp.MustCompile(`(\d{4,5})\s*m?ah`),
		cameraPattern:  regexp.MustCompile(`(\d{1,3})\s*mp`),
		networkPattern: regexp.MustCompile(`(5g|4g|3g)`),
	}
}

// ParseListing extracts the product links and the next-page link from a
// category page. All links are resolved against pageURL.
func (p *JumiaParser) ParseListing(pageURL string, htmlBody string) (*Listing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlBody))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page URL %q: %w", pageURL, err)
	}

	listing := &Listing{}
	doc.Find("article.prd a.core").Each(func(i int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok && href != "" {
			listing.ProductLinks = append(listing.ProductLinks, absoluteURL(base, href))
		}
	})

	if href, ok := doc.Find(`a.pg[aria-label="Next"]`).First().Attr("href"); ok && href != "" {
		listing.NextPage = absoluteURL(base, href)
	}

	return listing, nil
}

// ParseProduct builds a product record from a product page. Fields that
// cannot be extracted are left nil; the caller decides whether the record is
// complete enough to keep.
func (p *JumiaParser) ParseProduct(pageURL string, htmlBody string) (*models.Product, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlBody))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page URL %q: %w", pageURL, err)
	}

	product := &models.Product{
		Link:      pageURL,
		Title:     strings.TrimSpace(doc.Find("h1.-fs20").First().Text()),
		ScrapedAt: time.Now(),
	}

	product.CurrentPrice = firstPrice(doc,
		text("span.-b.-ltr.-tal.-fs24"),
		text("div.prc"),
		attr(`meta[itemprop="price"]`, "content"),
	)
	product.OriginalPrice = firstPrice(doc,
		text("div.old"),
		text("span.-tal.-gy5.-lthr.-fs16"),
	)
	if raw := firstValue(doc, text("span.bdg._dsct")); raw != "" {
		product.Discount = ParseFloat(strings.ReplaceAll(raw, "%", ""))
	}

	for _, candidate := range []extractor{
		text("div.stars._m._al"),
		attr(`meta[itemprop="ratingValue"]`, "content"),
	} {
		if r := ParseRating(candidate(doc)); r != nil {
			product.Rating = r
			break
		}
	}

	for _, candidate := range []extractor{
		text(`a[href="#reviews"] span`),
		text("div.rev"),
		text("span.-plxs"),
		attr(`meta[itemprop="reviewCount"]`, "content"),
	} {
		if c := ParseReviewCount(candidate(doc)); c != nil {
			product.ReviewCount = c
			break
		}
	}

	if seller := firstValue(doc,
		text(`a[href*="/merchant/"]`),
		text("div.merchant-name"),
		text(`div.-pvxs a:not([href*="/brand/"])`),
	); seller != "" {
		product.Seller = &seller
	}

	if brand := firstValue(doc,
		text(`a[href*="/brand/"]`),
		attr(`meta[itemprop="brand"]`, "content"),
	); brand != "" {
		product.Brand = &brand
	}

	shipping := firstValue(doc, text("div.shipping"), text("div.-df.-i-ctr.-pbs"))
	if shipping == "" {
		if strings.Contains(strings.ToLower(htmlBody), "free delivery") {
			shipping = "Free"
		} else {
			shipping = "Paid"
		}
	}
	product.Shipping = &shipping

	if parts := textFragments(doc.Find("div.markup.-mhm.-pvl")); len(parts) > 0 {
		description := strings.Join(parts, " ")
		product.Description = &description
	}

	doc.Find("div.sldr img").Each(func(i int, s *goquery.Selection) {
		if src, ok := s.Attr("data-src"); ok && src != "" {
			product.ImageURLs = append(product.ImageURLs, absoluteURL(base, src))
		}
	})

	specs := p.extractSections(doc, pageURL)
	specs = append(specs, p.extractFromTitle(product)...)
	product.Specifications = specs

	product.Normalize()
	return product, nil
}

// extractSections walks the specification cards on the page. Rows missing a
// key or a value are skipped and logged, never emitted.
func (p *JumiaParser) extractSections(doc *goquery.Document, pageURL string) []models.SpecEntry {
	var specs []models.SpecEntry

	doc.Find("section.card.-pvs").Each(func(i int, section *goquery.Selection) {
		category := strings.TrimSpace(section.Find("h2").First().Text())

		section.Find("tr").Each(func(j int, row *goquery.Selection) {
			key := strings.TrimSpace(row.Find("th").First().Text())
			val := strings.TrimSpace(row.Find("td").First().Text())

			switch {
			case key == "" && val == "":
				p.logger.Warn("skipping empty spec row", "link", pageURL, "category", category)
			case key == "":
				p.logger.Info("skipping spec row without key", "link", pageURL, "category", category, "value", val)
			case val == "":
				p.logger.Info("skipping spec row without value", "link", pageURL, "category", category, "key", key)
			default:
				specs = append(specs, models.SpecEntry{
					Category:  category,
					SpecKey:   key,
					SpecValue: val,
				})
			}
		})
	})

	return specs
}

// extractFromTitle derives the phone attributes from the lower-cased title
// and records an "extracted" audit entry for every attribute, matched or not,
// so the extracted block always has the same shape.
func (p *JumiaParser) extractFromTitle(product *models.Product) []models.SpecEntry {
	title := strings.ToLower(product.Title)
	var specs []models.SpecEntry

	appendExtracted := func(key, value string) {
		specType := specTypeExtracted
		specs = append(specs, models.SpecEntry{
			Category:  specTypeExtracted,
			SpecType:  &specType,
			SpecKey:   key,
			SpecValue: value,
		})
	}

	if m := p.ramPattern.FindStringSubmatch(title); m != nil {
		product.RAMGB = ParseInt(m[1])
	}
	appendExtracted("RAM (extracted)", intOrNull(product.RAMGB))

	if m := p.storagePattern.FindStringSubmatch(title); m != nil {
		product.StorageGB = ParseInt(m[1])
	}
	appendExtracted("Storage (extracted)", intOrNull(product.StorageGB))

	if m := p.screenPattern.FindStringSubmatch(title); m != nil {
		product.ScreenSizeInches = ParseFloat(m[1])
	}
	appendExtracted("Screen Size (inches)", floatOrNull(product.ScreenSizeInches))

	if m := p.batteryPattern.FindStringSubmatch(title); m != nil {
		product.BatteryMAh = ParseInt(m[1])
	}
	appendExtracted("Battery (mAh)", intOrNull(product.BatteryMAh))

	if m := p.cameraPattern.FindStringSubmatch(title); m != nil {
		product.CameraMPMain = ParseInt(m[1])
	}
	appendExtracted("Camera MP Main", intOrNull(product.CameraMPMain))

	if m := p.networkPattern.FindStringSubmatch(title); m != nil {
		network := strings.ToUpper(m[1])
		product.NetworkType = &network
	}
	if product.NetworkType != nil {
		appendExtracted("Network Type", *product.NetworkType)
	} else {
		appendExtracted("Network Type", "null")
	}

	product.HasDualSim = strings.Contains(title, "dual sim")
	appendExtracted("Dual SIM", strconv.FormatBool(product.HasDualSim))

	return specs
}

type extractor func(*goquery.Document) string

func text(selector string) extractor {
	return func(doc *goquery.Document) string {
		return strings.TrimSpace(doc.Find(selector).First().Text())
	}
}

func attr(selector, name string) extractor {
	return func(doc *goquery.Document) string {
		v, _ := doc.Find(selector).First().Attr(name)
		return strings.TrimSpace(v)
	}
}

// firstValue tries each extractor in order and returns the first non-empty
// result.
func firstValue(doc *goquery.Document, candidates ...extractor) string {
	for _, candidate := range candidates {
		if v := candidate(doc); v != "" {
			return v
		}
	}
	return ""
}

// firstPrice parses each candidate and returns the first that yields a price.
func firstPrice(doc *goquery.Document, candidates ...extractor) *float64 {
	for _, candidate := range candidates {
		if price := ParsePrice(candidate(doc)); price != nil {
			return price
		}
	}
	return nil
}

// textFragments collects every trimmed, non-empty text node under the
// selection, preserving document order.
func textFragments(sel *goquery.Selection) []string {
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return parts
}

func absoluteURL(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

func intOrNull(v *int) string {
	if v == nil {
		return "null"
	}
	return strconv.Itoa(*v)
}

func floatOrNull(v *float64) string {
	if v == nil {
		return "null"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
