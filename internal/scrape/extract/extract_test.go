// File: internal/scrape/extract/extract_test.go
package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/prodscout/prodscout-cli/internal/config"
	"github.com/prodscout/prodscout-cli/internal/scrape"
)

func testSelectors() config.SelectorsConfig {
	return config.SelectorsConfig{
		WinningBadge:     ".winning-badge",
		TagElements:      []string{".product-tag"},
		SpecRows:         []string{".spec-row"},
		RatingElements:   []string{".rating-value"},
		ReviewCount:      []string{".review-count"},
		CostLabel:        "Product Cost",
		PriceLabel:       "Selling Price",
		ProfitLabel:      "Profit per Sale",
		ProductCDNHosts:  []string{"cdn.tradelle.io"},
		SupplierCDNHosts: []string{"ae01.alicdn.com"},
	}
}

const detailPage = `<!DOCTYPE html>
<html><body>
<nav><h2>Winning Products</h2></nav>
<main>
  <h1>Smart Portable Blender Bottle</h1>
  <span class="winning-badge">Winning</span>
  <div class="product-description">
    Blend smoothies anywhere with this rechargeable portable blender,
    featuring six stainless steel blades and a 450ml BPA-free bottle.
  </div>
  <div class="pricing">
    <div><span>Product Cost</span><span>$12.50</span></div>
    <div><span>Selling Price</span><span>$34.99</span></div>
    <div><span>Profit per Sale</span><span>$22.49</span></div>
  </div>
  <img src="https://cdn.tradelle.io/products/abc123/main.jpg">
  <img src="https://cdn.tradelle.io/products/abc123/alt1.jpg">
  <img src="https://cdn.tradelle.io/products/zzz999/other.jpg">
  <img src="https://ae01.alicdn.com/products/sup777/supplier.jpg">
  <span class="rating-value">4.5 out of 5</span>
  <span class="review-count">2,233 reviews</span>
  <span class="product-tag">Home &amp; Kitchen</span>
  <span class="product-tag">Trending</span>
  <div class="spec-row"><span>Material</span><span>BPA-free plastic</span></div>
  <div class="spec-row"><span>Capacity</span><span>450ml</span></div>
  <p>Added 14 days ago</p>
  <script>var trendChart = {"trendData": [10, 20, 35, 42]};</script>
</main>
</body></html>`

func newTestExtractor(t *testing.T, html, pageURL string) *Extractor {
	t.Helper()
	e, err := New(html, pageURL, testSelectors(), scrape.NewStepLogger(zap.NewNop()))
	require.NoError(t, err)
	return e
}

func TestExtractDetailPage(t *testing.T) {
	e := newTestExtractor(t, detailPage, "https://app.tradelle.io/products/abc123")
	raw := e.Product()

	assert.Equal(t, "Smart Portable Blender Bottle", raw.Title)
	assert.Contains(t, raw.Description, "rechargeable portable blender")
	assert.Equal(t, "12.50", raw.SupplierPrice.Raw())
	assert.Equal(t, "34.99", raw.RetailPrice.Raw())
	assert.Equal(t, "22.49", raw.ProfitPerSale.Raw())

	assert.Equal(t, "https://cdn.tradelle.io/products/abc123/main.jpg", raw.ImageURL)
	assert.Equal(t, []string{"https://cdn.tradelle.io/products/abc123/alt1.jpg"}, raw.AdditionalImages)

	assert.Equal(t, "4.5 out of 5", raw.Rating.Raw())
	assert.Equal(t, "2,233 reviews", raw.ReviewsCount.Raw())
	assert.Equal(t, "Home & Kitchen", raw.Category)
	assert.Equal(t, []string{"Home & Kitchen", "Trending"}, raw.FilterTags)
	assert.True(t, raw.IsWinning)
	assert.Equal(t, map[string]string{
		"Material": "BPA-free plastic",
		"Capacity": "450ml",
	}, raw.Specifications)
	assert.Equal(t, []float64{10, 20, 35, 42}, raw.TrendData)
	assert.Equal(t, "Added 14 days ago", raw.FoundDate)
	assert.Equal(t, "sup777", raw.SupplierID)
	assert.Equal(t, "abc123", raw.SourceID)
	assert.Equal(t, "https://app.tradelle.io/products/abc123", raw.SourceURL)
}

const unlabeledPage = `<!DOCTYPE html>
<html><body>
<div class="item-title">Mini Espresso Maker Deluxe</div>
<p>Brew rich espresso on the go with this hand-powered portable maker,
no batteries or electricity required, cleans in seconds.</p>
<span>$9.99</span>
<span>$24.99</span>
<span>$15.00</span>
<span>$9.99</span>
</body></html>`

func TestExtractFallbackRules(t *testing.T) {
	e := newTestExtractor(t, unlabeledPage, "https://app.tradelle.io/products/def456")
	raw := e.Product()

	t.Run("title falls back to class hint", func(t *testing.T) {
		assert.Equal(t, "Mini Espresso Maker Deluxe", raw.Title)
	})

	t.Run("description falls back to paragraph scan", func(t *testing.T) {
		assert.Contains(t, raw.Description, "hand-powered portable maker")
	})

	t.Run("prices assigned positionally from distinct amounts", func(t *testing.T) {
		assert.Equal(t, "9.99", raw.SupplierPrice.Raw())
		assert.Equal(t, "24.99", raw.RetailPrice.Raw())
		assert.Equal(t, "15.00", raw.ProfitPerSale.Raw())
	})

	t.Run("absent fields stay unset", func(t *testing.T) {
		assert.Empty(t, raw.ImageURL)
		assert.False(t, raw.Rating.IsSet())
		assert.False(t, raw.IsWinning)
		assert.Empty(t, raw.Specifications)
		assert.Empty(t, raw.TrendData)
	})
}

func TestProductIDFromURL(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"https://app.tradelle.io/products/abc123", "abc123"},
		{"https://app.tradelle.io/products/abc123/", "abc123"},
		{"https://app.tradelle.io/product/winner-991?tab=specs", "winner-991"},
		{"https://app.tradelle.io/", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, productIDFromURL(tc.url), tc.url)
	}
}
