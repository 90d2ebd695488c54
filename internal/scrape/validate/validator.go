// File: internal/scrape/validate/validator.go
package validate

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/prodscout/prodscout-cli/internal/scrape"
)

// Completeness weights per canonical field. They sum to 100, so the
// score is a whole percentage.
var fieldWeights = []struct {
	name   string
	weight int
}{
	{"title", 15},
	{"image_url", 15},
	{"buy_price", 15},
	{"sell_price", 15},
	{"description", 8},
	{"profit_per_order", 7},
	{"category_id", 5},
	{"additional_images", 5},
	{"specifications", 4},
	{"rating", 3},
	{"reviews_count", 3},
	{"trend_data", 3},
	{"supplier_id", 2},
}

// FieldNames lists the canonical field names in weight order.
func FieldNames() []string {
	names := make([]string, len(fieldWeights))
	for i, fw := range fieldWeights {
		names[i] = fw.name
	}
	return names
}

var (
	priceCharsRe   = regexp.MustCompile(`[^0-9.,]`)
	decimalCommaRe = regexp.MustCompile(`^\d+,\d{2}$`)
	ratingRe       = regexp.MustCompile(`\d+(?:\.\d+)?`)
	countRe        = regexp.MustCompile(`(\d+(?:[.,]\d+)*)\s*([kKmM])?`)
)

// ParsePrice extracts a non-negative amount from a price scalar.
// Currency symbols and whitespace are discarded. A comma counts as the
// decimal separator only when the value has no period and the comma is
// followed by exactly two digits; every other comma is a thousands
// separator.
func ParsePrice(v scrape.Scalar) (float64, bool) {
	if !v.IsSet() {
		return 0, false
	}
	if f, ok := v.Num(); ok {
		if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}

	cleaned := priceCharsRe.ReplaceAllString(v.Raw(), "")
	if cleaned == "" {
		return 0, false
	}
	if strings.Contains(cleaned, ".") || !decimalCommaRe.MatchString(cleaned) {
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	} else {
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	}

	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || f < 0 {
		return 0, false
	}
	return f, true
}

// ParseRating pulls the first decimal number out of a rating scalar and
// clamps it to [0, 5]. Text such as "4.5 out of 5 stars" yields 4.5.
func ParseRating(v scrape.Scalar) (float64, bool) {
	if !v.IsSet() {
		return 0, false
	}
	if f, ok := v.Num(); ok {
		return clampRating(f), true
	}
	match := ratingRe.FindString(v.Raw())
	if match == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}
	return clampRating(f), true
}

func clampRating(f float64) float64 {
	if f < 0 || math.IsNaN(f) {
		return 0
	}
	if f > 5 {
		return 5
	}
	return f
}

// ParseInteger reads a count scalar. Thousands separators are dropped
// and a trailing k or m multiplies by 1e3 or 1e6; fractional results
// are floored, so "1.2k" becomes 1200.
func ParseInteger(v scrape.Scalar) (int, bool) {
	if !v.IsSet() {
		return 0, false
	}
	if f, ok := v.Num(); ok {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return int(math.Floor(f)), true
	}

	match := countRe.FindStringSubmatch(v.Raw())
	if match == nil {
		return 0, false
	}
	number := match[1]
	suffix := strings.ToLower(match[2])

	// With a magnitude suffix the separators inside the number are
	// decimal points ("1.2k"). Without one, commas are thousands
	// separators ("2,233"), and a dot is too only when every group it
	// delimits has three digits ("1.234"); otherwise it is a decimal
	// point and the value floors ("4.5" reads as 4).
	if suffix == "" {
		number = strings.ReplaceAll(number, ",", "")
		if parts := strings.Split(number, "."); len(parts) > 1 && allThousandsGroups(parts[1:]) {
			number = strings.Join(parts, "")
		}
	} else {
		number = strings.Replace(number, ",", ".", 1)
	}

	f, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return 0, false
	}
	switch suffix {
	case "k":
		f *= 1e3
	case "m":
		f *= 1e6
	}
	return int(math.Floor(f)), true
}

func allThousandsGroups(groups []string) bool {
	for _, g := range groups {
		if len(g) != 3 {
			return false
		}
	}
	return true
}

// NormalizeURL resolves raw into an absolute http(s) URL. Already
// absolute URLs pass through, protocol-relative URLs get https, and
// anything else is resolved against base when one is given.
func NormalizeURL(raw, base string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if u.IsAbs() {
		if u.Scheme != "http" && u.Scheme != "https" {
			return "", false
		}
		return u.String(), true
	}
	if base == "" {
		return "", false
	}
	b, err := url.Parse(base)
	if err != nil || !b.IsAbs() {
		return "", false
	}
	return b.ResolveReference(u).String(), true
}

// TransformProduct maps best-effort raw extraction onto the canonical
// product shape. Missing values become zero values rather than
// failures; Rating alone stays nil when absent because a zero rating is
// meaningful.
func TransformProduct(raw *scrape.RawProduct) *scrape.Product {
	p := &scrape.Product{
		Title:            strings.TrimSpace(raw.Title),
		Description:      strings.TrimSpace(raw.Description),
		CategoryID:       strings.TrimSpace(raw.Category),
		SupplierID:       strings.TrimSpace(raw.SupplierID),
		AdditionalImages: []string{},
		Specifications:   map[string]string{},
		TrendData:        []float64{},
	}

	if u, ok := NormalizeURL(raw.ImageURL, raw.SourceURL); ok {
		p.ImageURL = u
	}
	for _, img := range raw.AdditionalImages {
		if u, ok := NormalizeURL(img, raw.SourceURL); ok && u != p.ImageURL {
			p.AdditionalImages = append(p.AdditionalImages, u)
		}
	}

	buy, buyOK := ParsePrice(raw.SupplierPrice)
	sell, sellOK := ParsePrice(raw.RetailPrice)
	if buyOK {
		p.BuyPrice = buy
	}
	if sellOK {
		p.SellPrice = sell
	}
	// Profit is derived from the two prices; the page's own profit
	// figure stays on the raw capture as a diagnostic.
	if buyOK && sellOK {
		p.ProfitPerOrder = round2(sell - buy)
	}

	for k, v := range raw.Specifications {
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k != "" && v != "" {
			p.Specifications[k] = v
		}
	}
	if r, ok := ParseRating(raw.Rating); ok {
		p.Rating = &r
	}
	if n, ok := ParseInteger(raw.ReviewsCount); ok && n >= 0 {
		p.ReviewsCount = n
	}
	if len(raw.TrendData) > 0 {
		p.TrendData = append(p.TrendData, raw.TrendData...)
	}
	return p
}

// TransformMetadata never fails; every metadata field is optional.
func TransformMetadata(raw *scrape.RawProduct, now time.Time) scrape.Metadata {
	m := scrape.Metadata{
		SourceURL:  raw.SourceURL,
		SourceID:   raw.SourceID,
		IsWinning:  raw.IsWinning,
		FoundDate:  strings.TrimSpace(raw.FoundDate),
		FilterTags: []string{},
		ScrapedAt:  now.UTC(),
	}
	if margin, ok := ParsePrice(raw.ProfitMargin); ok {
		m.ProfitMargin = margin
	}
	if sold, ok := ParseInteger(raw.ItemsSold); ok && sold >= 0 {
		m.ItemsSold = sold
	}
	for _, tag := range raw.FilterTags {
		if tag = strings.TrimSpace(tag); tag != "" {
			m.FilterTags = append(m.FilterTags, tag)
		}
	}
	return m
}

// CompletenessScore sums the weights of the populated fields. A field
// counts when it is a non-empty string, a positive number, a non-empty
// collection, or a non-nil rating.
func CompletenessScore(p *scrape.Product) int {
	score := 0
	for _, fw := range fieldWeights {
		if fieldPopulated(p, fw.name) {
			score += fw.weight
		}
	}
	return score
}

func fieldPopulated(p *scrape.Product, name string) bool {
	switch name {
	case "title":
		return p.Title != ""
	case "image_url":
		return p.ImageURL != ""
	case "buy_price":
		return p.BuyPrice > 0
	case "sell_price":
		return p.SellPrice > 0
	case "description":
		return p.Description != ""
	case "profit_per_order":
		return p.ProfitPerOrder > 0
	case "category_id":
		return p.CategoryID != ""
	case "additional_images":
		return len(p.AdditionalImages) > 0
	case "specifications":
		return len(p.Specifications) > 0
	case "rating":
		return p.Rating != nil
	case "reviews_count":
		return p.ReviewsCount > 0
	case "trend_data":
		return len(p.TrendData) > 0
	case "supplier_id":
		return p.SupplierID != ""
	}
	return false
}

// RequiredFieldsComplete checks the four fields a usable listing cannot
// do without, independently of how the score was computed.
func RequiredFieldsComplete(p *scrape.Product) bool {
	return p.Title != "" && p.ImageURL != "" && p.BuyPrice > 0 && p.SellPrice > 0
}

// ValidateProduct transforms a raw extraction and judges the outcome.
// TransformedProduct is set only when the result is valid, so callers
// can rely on a non-nil product being complete and well formed.
func ValidateProduct(raw *scrape.RawProduct, now time.Time) *scrape.ValidationResult {
	p := TransformProduct(raw)

	res := &scrape.ValidationResult{
		CompletenessScore:   CompletenessScore(p),
		MissingFields:       []string{},
		Warnings:            []string{},
		TransformedMetadata: TransformMetadata(raw, now),
	}

	for _, fw := range fieldWeights {
		if !fieldPopulated(p, fw.name) {
			res.MissingFields = append(res.MissingFields, fw.name)
		}
	}

	res.InvalidFields = structuralErrors(raw, p)
	res.RequiredFieldsComplete = RequiredFieldsComplete(p)
	res.IsValid = res.RequiredFieldsComplete && len(res.InvalidFields) == 0
	if res.IsValid {
		res.TransformedProduct = p
	}

	if p.Description == "" {
		res.Warnings = append(res.Warnings, "description not found")
	}
	if len(p.AdditionalImages) == 0 {
		res.Warnings = append(res.Warnings, "no additional images captured")
	}
	if len(p.Specifications) == 0 {
		res.Warnings = append(res.Warnings, "no specifications captured")
	}
	if len(p.TrendData) == 0 {
		res.Warnings = append(res.Warnings, "no trend data captured")
	}
	return res
}

// structuralErrors flags raw values that were present but unusable.
// Absent values are never errors here; they surface as missing fields.
func structuralErrors(raw *scrape.RawProduct, p *scrape.Product) []scrape.FieldError {
	var errs []scrape.FieldError

	if raw.ImageURL != "" && p.ImageURL == "" {
		errs = append(errs, fieldErr("image_url", "not a resolvable http(s) URL", raw.ImageURL))
	}
	if raw.SupplierPrice.IsSet() && p.BuyPrice == 0 {
		errs = append(errs, fieldErr("buy_price", "unparseable price", raw.SupplierPrice.Raw()))
	}
	if raw.RetailPrice.IsSet() && p.SellPrice == 0 {
		errs = append(errs, fieldErr("sell_price", "unparseable price", raw.RetailPrice.Raw()))
	}
	if p.BuyPrice > 0 && p.SellPrice > 0 && p.SellPrice < p.BuyPrice {
		errs = append(errs, fieldErr("sell_price",
			fmt.Sprintf("selling price below cost %.2f", p.BuyPrice),
			fmt.Sprintf("%.2f", p.SellPrice)))
	}
	return errs
}

func fieldErr(field, msg, received string) scrape.FieldError {
	return scrape.FieldError{Field: field, Error: msg, Received: received}
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
