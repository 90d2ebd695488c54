// File: internal/scrape/extract/extract.go

// Package extract turns a settled HTML snapshot of a product detail
// page into a RawProduct. Every field runs through an ordered list of
// named rules; the first rule to produce a value wins, and a field with
// no winning rule is simply left unset.
package extract

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	jsoniter "github.com/json-iterator/go"

	"github.com/prodscout/prodscout-cli/internal/config"
	"github.com/prodscout/prodscout-cli/internal/scrape"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	currencyRe   = regexp.MustCompile(`[$€£]\s*(\d[\d,]*(?:\.\d{1,2})?)`)
	foundDateRe  = regexp.MustCompile(`(?i)added(?:\s+to\s+tradelle)?\s+((?:\d+\s+\w+\s+ago)|(?:[A-Za-z]+\s+\d{1,2},?\s+\d{4}))`)
	embeddedIDRe = regexp.MustCompile(`/products?/([A-Za-z0-9_-]{6,})(?:[/._?]|$)`)
	trendArrayRe = regexp.MustCompile(`\[\s*-?\d+(?:\.\d+)?(?:\s*,\s*-?\d+(?:\.\d+)?){2,}\s*\]`)
)

// titleNoise matches navigation chrome that shows up in headings before
// the real product name.
var titleNoise = []string{
	"dashboard", "products", "winning products", "product research",
	"my products", "settings", "log out", "tradelle",
}

// descriptionNoise filters boilerplate paragraphs.
var descriptionNoise = []string{
	"cookie", "privacy policy", "terms of service", "sign in",
	"subscribe", "all rights reserved",
}

// rule is one named attempt at producing a field value.
type rule struct {
	name string
	fn   func() (string, bool)
}

func firstMatch(rules []rule) (string, string, bool) {
	for _, r := range rules {
		if v, ok := r.fn(); ok {
			return v, r.name, true
		}
	}
	return "", "", false
}

// Extractor reads one parsed snapshot. It holds no browser handle; the
// caller captures the DOM once and hands over the HTML.
type Extractor struct {
	doc       *goquery.Document
	sel       config.SelectorsConfig
	step      *scrape.StepLogger
	pageURL   string
	productID string
}

// New parses the snapshot and prepares an extractor for it.
func New(html, pageURL string, sel config.SelectorsConfig, step *scrape.StepLogger) (*Extractor, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	return &Extractor{
		doc:       doc,
		sel:       sel,
		step:      step,
		pageURL:   pageURL,
		productID: productIDFromURL(pageURL),
	}, nil
}

func productIDFromURL(pageURL string) string {
	if m := embeddedIDRe.FindStringSubmatch(pageURL); m != nil {
		return m[1]
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	return segments[len(segments)-1]
}

// Product runs every field pipeline and reports each outcome.
func (e *Extractor) Product() *scrape.RawProduct {
	raw := &scrape.RawProduct{
		SourceURL: e.pageURL,
		SourceID:  e.productID,
	}

	raw.Title = e.reportString("title", e.title())
	raw.Description = e.reportString("description", e.description())

	cost, sell, profit := e.prices()
	raw.SupplierPrice = e.reportScalar("buy_price", cost)
	raw.RetailPrice = e.reportScalar("sell_price", sell)
	raw.ProfitPerSale = e.reportScalar("profit_per_order", profit)

	main, additional := e.images()
	raw.ImageURL = e.reportString("image_url", main)
	raw.AdditionalImages = additional
	e.step.FieldCount("additional_images", len(additional))

	raw.Specifications = e.specifications()
	e.step.FieldCount("specifications", len(raw.Specifications))

	raw.Rating = e.reportScalar("rating", e.bySelectors(e.sel.RatingElements))
	raw.ReviewsCount = e.reportScalar("reviews_count", e.bySelectors(e.sel.ReviewCount))

	raw.Category, raw.FilterTags = e.tags()
	e.step.Field("category", raw.Category, raw.Category != "")
	e.step.FieldCount("filter_tags", len(raw.FilterTags))

	raw.IsWinning = e.isWinning()
	e.step.Field("is_winning", strconv.FormatBool(raw.IsWinning), true)

	raw.TrendData = e.trendData()
	e.step.FieldCount("trend_data", len(raw.TrendData))

	raw.FoundDate = e.reportString("found_date", e.foundDate())
	raw.SupplierID = e.reportString("supplier_id", e.supplierID())

	return raw
}

func (e *Extractor) reportString(field, v string) string {
	e.step.Field(field, v, v != "")
	return v
}

func (e *Extractor) reportScalar(field string, v scrape.Scalar) scrape.Scalar {
	e.step.Field(field, v.Raw(), v.IsSet())
	return v
}

func (e *Extractor) title() string {
	v, _, _ := firstMatch([]rule{
		{"heading scan", func() (string, bool) {
			return e.firstCleanText("h1, h2", func(t string) bool {
				return len(t) > 10 && len(t) < 200 && !containsAny(strings.ToLower(t), titleNoise)
			})
		}},
		{"class hint", func() (string, bool) {
			return e.firstCleanText(`[class*="title"], [class*="product-name"], [class*="heading"]`, func(t string) bool {
				return len(t) > 10 && len(t) < 200 && !containsAny(strings.ToLower(t), titleNoise)
			})
		}},
	})
	return v
}

func (e *Extractor) description() string {
	v, _, _ := firstMatch([]rule{
		{"class hint", func() (string, bool) {
			return e.firstCleanText(`[class*="description"]`, func(t string) bool {
				return len(t) >= 50 && len(t) <= 2000
			})
		}},
		{"paragraph scan", func() (string, bool) {
			return e.firstCleanText("p", func(t string) bool {
				return len(t) >= 50 && len(t) <= 2000 && !containsAny(strings.ToLower(t), descriptionNoise)
			})
		}},
		{"show more sibling", func() (string, bool) {
			var out string
			e.doc.Find("button, a, span").EachWithBreak(func(_ int, s *goquery.Selection) bool {
				if !strings.EqualFold(strings.TrimSpace(s.Text()), "show more") {
					return true
				}
				t := cleanText(s.Parent().Text())
				t = strings.TrimSpace(strings.TrimSuffix(t, "Show more"))
				if len(t) >= 50 {
					out = t
					return false
				}
				return true
			})
			return out, out != ""
		}},
	})
	return v
}

// prices resolves the cost, selling price and profit triplet. Labeled
// containers are authoritative; when none of the labels resolve, a
// global currency scan assigns the first three distinct amounts
// positionally.
func (e *Extractor) prices() (cost, sell, profit scrape.Scalar) {
	cost = e.labeledAmount(e.sel.CostLabel)
	sell = e.labeledAmount(e.sel.PriceLabel)
	profit = e.labeledAmount(e.sel.ProfitLabel)
	if cost.IsSet() || sell.IsSet() || profit.IsSet() {
		return cost, sell, profit
	}

	amounts := distinctAmounts(e.doc.Find("body").Text(), 3)
	if len(amounts) > 0 {
		cost = scrape.String(amounts[0])
	}
	if len(amounts) > 1 {
		sell = scrape.String(amounts[1])
	}
	if len(amounts) > 2 {
		profit = scrape.String(amounts[2])
	}
	return cost, sell, profit
}

// labeledAmount finds the smallest element containing the label text
// and pulls the first currency amount from it or its parent container.
func (e *Extractor) labeledAmount(label string) scrape.Scalar {
	if label == "" {
		return scrape.Scalar{}
	}
	var out scrape.Scalar
	e.doc.Find("div, span, p, td, dt, dd, li").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !strings.Contains(s.Text(), label) {
			return true
		}
		// Keep descending while a child still carries the label; the
		// deepest such node has the tightest surrounding text.
		if s.Children().FilterFunction(func(_ int, c *goquery.Selection) bool {
			return strings.Contains(c.Text(), label)
		}).Length() > 0 {
			return true
		}
		for probe, depth := s, 0; probe.Length() > 0 && depth < 3; probe, depth = probe.Parent(), depth+1 {
			text := strings.Replace(probe.Text(), label, "", 1)
			if m := currencyRe.FindStringSubmatch(text); m != nil {
				out = scrape.String(m[1])
				return false
			}
		}
		return true
	})
	return out
}

func distinctAmounts(text string, limit int) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, m := range currencyRe.FindAllStringSubmatch(text, -1) {
		if _, dup := seen[m[1]]; dup {
			continue
		}
		seen[m[1]] = struct{}{}
		out = append(out, m[1])
		if len(out) == limit {
			break
		}
	}
	return out
}

// images ranks candidate img sources. Product-ID-scoped URLs outrank
// product CDN URLs, which outrank supplier CDN URLs, which outrank any
// image at least 150px wide. Additional images drop URLs carrying a
// different embedded product ID.
func (e *Extractor) images() (string, []string) {
	type candidate struct {
		url   string
		score int
	}
	var candidates []candidate
	seen := map[string]struct{}{}

	e.doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		src = strings.TrimSpace(src)
		if src == "" || strings.HasPrefix(src, "data:") {
			return
		}
		if _, dup := seen[src]; dup {
			return
		}
		seen[src] = struct{}{}

		score := 0
		if e.productID != "" && strings.Contains(src, e.productID) {
			score = 100
		} else if hostMatches(src, e.sel.ProductCDNHosts) {
			score = 50
		} else if hostMatches(src, e.sel.SupplierCDNHosts) {
			score = 25
		} else if w, _ := s.Attr("width"); widthAtLeast(w, 150) {
			score = 10
		}
		if score > 0 {
			candidates = append(candidates, candidate{url: src, score: score})
		}
	})

	if len(candidates) == 0 {
		return "", nil
	}

	best := 0
	for i, c := range candidates {
		if c.score > candidates[best].score {
			best = i
		}
	}
	main := candidates[best].url

	var additional []string
	for i, c := range candidates {
		if i == best {
			continue
		}
		if id := embeddedID(c.url); id != "" && e.productID != "" && id != e.productID {
			continue
		}
		additional = append(additional, c.url)
	}
	return main, additional
}

func embeddedID(u string) string {
	if m := embeddedIDRe.FindStringSubmatch(u); m != nil {
		return m[1]
	}
	return ""
}

func hostMatches(u string, fragments []string) bool {
	for _, f := range fragments {
		if f != "" && strings.Contains(u, f) {
			return true
		}
	}
	return false
}

func widthAtLeast(attr string, min int) bool {
	w, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(attr), "px"))
	return err == nil && w >= min
}

func (e *Extractor) specifications() map[string]string {
	specs := map[string]string{}
	for _, selector := range e.sel.SpecRows {
		e.doc.Find(selector).Each(func(_ int, row *goquery.Selection) {
			key, value := splitSpecRow(row)
			if key != "" && value != "" {
				specs[key] = value
			}
		})
		if len(specs) > 0 {
			break
		}
	}
	return specs
}

func splitSpecRow(row *goquery.Selection) (string, string) {
	if dt := row.Find("dt").First(); dt.Length() > 0 {
		return cleanText(dt.Text()), cleanText(row.Find("dd").First().Text())
	}
	children := row.Children()
	if children.Length() >= 2 {
		return cleanText(children.Eq(0).Text()), cleanText(children.Eq(1).Text())
	}
	if key, value, found := strings.Cut(row.Text(), ":"); found {
		return cleanText(key), cleanText(value)
	}
	return "", ""
}

// bySelectors returns the first non-empty text across an ordered
// selector list.
func (e *Extractor) bySelectors(selectors []string) scrape.Scalar {
	for _, selector := range selectors {
		if t, ok := e.firstCleanText(selector, func(t string) bool { return t != "" }); ok {
			return scrape.String(t)
		}
	}
	return scrape.Scalar{}
}

func (e *Extractor) tags() (category string, tags []string) {
	seen := map[string]struct{}{}
	for _, selector := range e.sel.TagElements {
		e.doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			t := cleanText(s.Text())
			if t == "" || len(t) > 60 {
				return
			}
			if _, dup := seen[t]; dup {
				return
			}
			seen[t] = struct{}{}
			tags = append(tags, t)
		})
	}
	if len(tags) > 0 {
		category = tags[0]
	}
	return category, tags
}

func (e *Extractor) isWinning() bool {
	if e.sel.WinningBadge != "" && e.doc.Find(e.sel.WinningBadge).Length() > 0 {
		return true
	}
	found := false
	e.doc.Find(`[class*="badge"], [class*="label"], [class*="tag"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.Contains(strings.ToLower(s.Text()), "winning") {
			found = true
			return false
		}
		return true
	})
	return found
}

// trendData pulls the first numeric series embedded in an inline chart
// script.
func (e *Extractor) trendData() []float64 {
	var series []float64
	e.doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		if !strings.Contains(strings.ToLower(text), "trend") {
			return true
		}
		m := trendArrayRe.FindString(text)
		if m == "" {
			return true
		}
		if err := json.UnmarshalFromString(m, &series); err != nil {
			series = nil
			return true
		}
		return false
	})
	return series
}

func (e *Extractor) foundDate() string {
	if m := foundDateRe.FindStringSubmatch(e.doc.Find("body").Text()); m != nil {
		return strings.TrimSpace(m[0])
	}
	return ""
}

// supplierID reads the product ID embedded in a supplier CDN link.
func (e *Extractor) supplierID() string {
	var out string
	e.doc.Find("a[href], img[src]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		u, ok := s.Attr("href")
		if !ok {
			u, _ = s.Attr("src")
		}
		if !hostMatches(u, e.sel.SupplierCDNHosts) {
			return true
		}
		if id := embeddedID(u); id != "" {
			out = id
			return false
		}
		return true
	})
	return out
}

func (e *Extractor) firstCleanText(selector string, accept func(string) bool) (string, bool) {
	var out string
	e.doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		t := cleanText(s.Text())
		if accept(t) {
			out = t
			return false
		}
		return true
	})
	return out, out != ""
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
