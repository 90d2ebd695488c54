// File: internal/scrape/validate/validator_test.go
package validate

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prodscout/prodscout-cli/internal/scrape"
)

func TestParsePrice(t *testing.T) {
	cases := []struct {
		name string
		in   scrape.Scalar
		want float64
		ok   bool
	}{
		{"dollar with thousands and cents", scrape.String("$1,234.56"), 1234.56, true},
		{"plain dollar", scrape.String("$24.99"), 24.99, true},
		{"comma as decimal separator", scrape.String("12,99"), 12.99, true},
		{"comma as thousands separator", scrape.String("1,234"), 1234, true},
		{"euro prefix", scrape.String("EUR 7,50"), 7.5, true},
		{"numeric scalar", scrape.Number(12.5), 12.5, true},
		{"integer text", scrape.String("42"), 42, true},
		{"no digits", scrape.String("free shipping"), 0, false},
		{"unset", scrape.Scalar{}, 0, false},
		{"negative numeric", scrape.Number(-5), 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParsePrice(tc.in)
			require.Equal(t, tc.ok, ok)
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}
}

func TestParseRating(t *testing.T) {
	cases := []struct {
		name string
		in   scrape.Scalar
		want float64
		ok   bool
	}{
		{"stars phrase", scrape.String("4.5 out of 5 stars"), 4.5, true},
		{"bare number text", scrape.String("3.8"), 3.8, true},
		{"numeric scalar", scrape.Number(4.2), 4.2, true},
		{"clamped above five", scrape.Number(7), 5, true},
		{"clamped below zero", scrape.Number(-1), 0, true},
		{"text clamped above five", scrape.String("9.9"), 5, true},
		{"no number in text", scrape.String("no ratings yet"), 0, false},
		{"unset", scrape.Scalar{}, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseRating(tc.in)
			require.Equal(t, tc.ok, ok)
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}
}

func TestParseInteger(t *testing.T) {
	cases := []struct {
		name string
		in   scrape.Scalar
		want int
		ok   bool
	}{
		{"thousands separator", scrape.String("2,233 reviews"), 2233, true},
		{"dotted thousands separator", scrape.String("1.234"), 1234, true},
		{"decimal point floors", scrape.String("4.5"), 4, true},
		{"k suffix", scrape.String("1.2k"), 1200, true},
		{"uppercase K suffix", scrape.String("15K"), 15000, true},
		{"m suffix", scrape.String("3m"), 3000000, true},
		{"plain count", scrape.String("847"), 847, true},
		{"numeric scalar floored", scrape.Number(42.9), 42, true},
		{"no digits", scrape.String("be the first to review"), 0, false},
		{"unset", scrape.Scalar{}, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseInteger(tc.in)
			require.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizeURL(t *testing.T) {
	const base = "https://app.tradelle.io/products/abc123"

	cases := []struct {
		name string
		raw  string
		base string
		want string
		ok   bool
	}{
		{"absolute passes through", "https://cdn.tradelle.io/img/1.jpg", base, "https://cdn.tradelle.io/img/1.jpg", true},
		{"protocol relative", "//cdn.tradelle.io/img/1.jpg", "", "https://cdn.tradelle.io/img/1.jpg", true},
		{"relative with base", "/img/1.jpg", base, "https://app.tradelle.io/img/1.jpg", true},
		{"relative without base", "/img/1.jpg", "", "", false},
		{"non http scheme", "data:image/png;base64,AAAA", base, "", false},
		{"empty", "", base, "", false},
		{"whitespace only", "  ", base, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := NormalizeURL(tc.raw, tc.base)
			require.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTransformProduct(t *testing.T) {
	t.Run("derives profit from prices", func(t *testing.T) {
		raw := &scrape.RawProduct{
			Title:         "Smart Blender",
			ImageURL:      "https://cdn.tradelle.io/p/blender.jpg",
			SupplierPrice: scrape.String("$12.50"),
			RetailPrice:   scrape.String("$34.99"),
		}
		p := TransformProduct(raw)
		assert.Equal(t, "Smart Blender", p.Title)
		assert.InDelta(t, 12.5, p.BuyPrice, 1e-9)
		assert.InDelta(t, 34.99, p.SellPrice, 1e-9)
		assert.InDelta(t, 22.49, p.ProfitPerOrder, 1e-9)
	})

	t.Run("derivation overrides the page profit figure", func(t *testing.T) {
		raw := &scrape.RawProduct{
			SupplierPrice: scrape.String("$10.00"),
			RetailPrice:   scrape.String("$30.00"),
			ProfitPerSale: scrape.String("$18.75"),
		}
		p := TransformProduct(raw)
		assert.InDelta(t, 20.0, p.ProfitPerOrder, 1e-9)
	})

	t.Run("selling below cost derives a negative profit", func(t *testing.T) {
		raw := &scrape.RawProduct{
			SupplierPrice: scrape.String("$30.00"),
			RetailPrice:   scrape.String("$10.00"),
		}
		p := TransformProduct(raw)
		assert.InDelta(t, -20.0, p.ProfitPerOrder, 1e-9)
	})

	t.Run("one unparsed price leaves profit at zero", func(t *testing.T) {
		raw := &scrape.RawProduct{
			SupplierPrice: scrape.String("$12.50"),
			RetailPrice:   scrape.String("contact us"),
		}
		p := TransformProduct(raw)
		assert.Zero(t, p.ProfitPerOrder)
	})

	t.Run("resolves relative images against source url", func(t *testing.T) {
		raw := &scrape.RawProduct{
			ImageURL:         "/img/main.jpg",
			AdditionalImages: []string{"/img/alt1.jpg", "not a url ://", "/img/main.jpg"},
			SourceURL:        "https://app.tradelle.io/products/abc123",
		}
		p := TransformProduct(raw)
		assert.Equal(t, "https://app.tradelle.io/img/main.jpg", p.ImageURL)
		assert.Equal(t, []string{"https://app.tradelle.io/img/alt1.jpg"}, p.AdditionalImages)
	})

	t.Run("absent fields default without failing", func(t *testing.T) {
		p := TransformProduct(&scrape.RawProduct{})
		assert.Zero(t, p.BuyPrice)
		assert.Zero(t, p.SellPrice)
		assert.Zero(t, p.ProfitPerOrder)
		assert.Nil(t, p.Rating)
		assert.Empty(t, p.AdditionalImages)
		assert.NotNil(t, p.AdditionalImages)
		assert.NotNil(t, p.Specifications)
		assert.NotNil(t, p.TrendData)
	})

	t.Run("zero rating stays set", func(t *testing.T) {
		p := TransformProduct(&scrape.RawProduct{Rating: scrape.Number(0)})
		require.NotNil(t, p.Rating)
		assert.Zero(t, *p.Rating)
	})

	t.Run("drops blank specification entries", func(t *testing.T) {
		raw := &scrape.RawProduct{
			Specifications: map[string]string{
				"Material": "Stainless Steel",
				"  ":       "ignored",
				"Color":    " ",
			},
		}
		p := TransformProduct(raw)
		assert.Equal(t, map[string]string{"Material": "Stainless Steel"}, p.Specifications)
	})
}

func TestTransformMetadata(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	raw := &scrape.RawProduct{
		SourceURL:    "https://app.tradelle.io/products/abc123",
		SourceID:     "abc123",
		IsWinning:    true,
		ProfitMargin: scrape.String("64.3%"),
		ItemsSold:    scrape.String("1.2k sold"),
		FoundDate:    "Added 14 days ago",
		FilterTags:   []string{" trending ", "", "home"},
	}

	m := TransformMetadata(raw, now)
	assert.Equal(t, "abc123", m.SourceID)
	assert.True(t, m.IsWinning)
	assert.InDelta(t, 64.3, m.ProfitMargin, 1e-9)
	assert.Equal(t, 1200, m.ItemsSold)
	assert.Equal(t, []string{"trending", "home"}, m.FilterTags)
	assert.Equal(t, now, m.ScrapedAt)
}

func TestCompletenessScore(t *testing.T) {
	t.Run("weights sum to one hundred", func(t *testing.T) {
		total := 0
		for _, fw := range fieldWeights {
			total += fw.weight
		}
		assert.Equal(t, 100, total)
	})

	t.Run("required fields alone score sixty", func(t *testing.T) {
		p := &scrape.Product{
			Title:     "Smart Blender",
			ImageURL:  "https://cdn.tradelle.io/p/blender.jpg",
			BuyPrice:  12.5,
			SellPrice: 34.99,
		}
		assert.Equal(t, 60, CompletenessScore(p))
	})

	t.Run("fully populated product scores one hundred", func(t *testing.T) {
		rating := 4.5
		p := &scrape.Product{
			Title:            "Smart Blender",
			Description:      "Portable blender",
			ImageURL:         "https://cdn.tradelle.io/p/blender.jpg",
			BuyPrice:         12.5,
			SellPrice:        34.99,
			ProfitPerOrder:   22.49,
			CategoryID:       "kitchen",
			AdditionalImages: []string{"https://cdn.tradelle.io/p/blender-2.jpg"},
			Specifications:   map[string]string{"Material": "BPA-free plastic"},
			Rating:           &rating,
			ReviewsCount:     2233,
			TrendData:        []float64{10, 20, 35},
			SupplierID:       "sup-991",
		}
		assert.Equal(t, 100, CompletenessScore(p))
	})

	t.Run("empty product scores zero", func(t *testing.T) {
		assert.Zero(t, CompletenessScore(&scrape.Product{}))
	})
}

func TestValidateProduct(t *testing.T) {
	now := time.Now()

	t.Run("valid product gets transformed output", func(t *testing.T) {
		raw := &scrape.RawProduct{
			Title:         "Smart Blender",
			ImageURL:      "https://cdn.tradelle.io/p/blender.jpg",
			SupplierPrice: scrape.String("$12.50"),
			RetailPrice:   scrape.String("$34.99"),
		}
		res := ValidateProduct(raw, now)
		require.True(t, res.IsValid)
		require.NotNil(t, res.TransformedProduct)
		assert.True(t, res.RequiredFieldsComplete)
		assert.Empty(t, res.InvalidFields)
		assert.InDelta(t, 22.49, res.TransformedProduct.ProfitPerOrder, 1e-9)
	})

	t.Run("absence is missing not invalid", func(t *testing.T) {
		res := ValidateProduct(&scrape.RawProduct{Title: "Smart Blender"}, now)
		assert.False(t, res.IsValid)
		assert.Nil(t, res.TransformedProduct)
		assert.False(t, res.RequiredFieldsComplete)
		assert.Empty(t, res.InvalidFields)
		assert.Contains(t, res.MissingFields, "image_url")
		assert.Contains(t, res.MissingFields, "buy_price")
		assert.Contains(t, res.MissingFields, "sell_price")
	})

	t.Run("unparseable present price is invalid", func(t *testing.T) {
		raw := &scrape.RawProduct{
			Title:         "Smart Blender",
			ImageURL:      "https://cdn.tradelle.io/p/blender.jpg",
			SupplierPrice: scrape.String("contact supplier"),
			RetailPrice:   scrape.String("$34.99"),
		}
		res := ValidateProduct(raw, now)
		assert.False(t, res.IsValid)
		assert.Nil(t, res.TransformedProduct)
		require.Len(t, res.InvalidFields, 1)
		assert.Equal(t, "buy_price", res.InvalidFields[0].Field)
		assert.Equal(t, "contact supplier", res.InvalidFields[0].Received)
	})

	t.Run("selling below cost is invalid", func(t *testing.T) {
		raw := &scrape.RawProduct{
			Title:         "Smart Blender",
			ImageURL:      "https://cdn.tradelle.io/p/blender.jpg",
			SupplierPrice: scrape.String("$34.99"),
			RetailPrice:   scrape.String("$12.50"),
		}
		res := ValidateProduct(raw, now)
		assert.False(t, res.IsValid)
		require.Len(t, res.InvalidFields, 1)
		assert.Equal(t, "sell_price", res.InvalidFields[0].Field)
	})

	t.Run("warnings cover optional gaps", func(t *testing.T) {
		raw := &scrape.RawProduct{
			Title:         "Smart Blender",
			ImageURL:      "https://cdn.tradelle.io/p/blender.jpg",
			SupplierPrice: scrape.String("$12.50"),
			RetailPrice:   scrape.String("$34.99"),
		}
		res := ValidateProduct(raw, now)
		assert.Contains(t, res.Warnings, "description not found")
		assert.Contains(t, res.Warnings, "no trend data captured")
	})

	t.Run("pure function of its input", func(t *testing.T) {
		raw := &scrape.RawProduct{
			Title:          "Smart Blender",
			ImageURL:       "https://cdn.tradelle.io/p/blender.jpg",
			SupplierPrice:  scrape.String("$12.50"),
			RetailPrice:    scrape.String("$34.99"),
			Rating:         scrape.String("4.5 out of 5"),
			Specifications: map[string]string{"Material": "BPA-free plastic"},
		}
		first := ValidateProduct(raw, now)
		second := ValidateProduct(raw, now)
		assert.Empty(t, cmp.Diff(first, second))
	})

	t.Run("transformed product set only when valid", func(t *testing.T) {
		for _, raw := range []*scrape.RawProduct{
			{},
			{Title: "x"},
			{Title: "x", ImageURL: "https://cdn.tradelle.io/1.jpg"},
			{
				Title:         "x",
				ImageURL:      "https://cdn.tradelle.io/1.jpg",
				SupplierPrice: scrape.Number(1),
				RetailPrice:   scrape.Number(2),
			},
		} {
			res := ValidateProduct(raw, now)
			assert.Equal(t, res.IsValid, res.TransformedProduct != nil)
		}
	})
}
