// File: internal/scrape/types.go
package scrape

import (
	"fmt"
	"strconv"
	"time"
)

// Scalar holds a raw extracted value that the source formats
// inconsistently as either a string or a number. Extraction is
// best-effort, so the zero Scalar ("nothing found") is a normal value.
type Scalar struct {
	raw   string
	num   float64
	isNum bool
	isSet bool
}

// String wraps a raw string value. Empty strings remain "unset".
func String(s string) Scalar {
	if s == "" {
		return Scalar{}
	}
	return Scalar{raw: s, isSet: true}
}

// Number wraps a numeric value.
func Number(f float64) Scalar {
	return Scalar{num: f, isNum: true, isSet: true}
}

// IsSet reports whether any value was captured at all.
func (s Scalar) IsSet() bool { return s.isSet }

// Num returns the numeric value and whether the scalar is numeric.
func (s Scalar) Num() (float64, bool) { return s.num, s.isNum && s.isSet }

// Raw returns the underlying text. Numeric scalars format themselves.
func (s Scalar) Raw() string {
	if !s.isSet {
		return ""
	}
	if s.isNum {
		return strconv.FormatFloat(s.num, 'f', -1, 64)
	}
	return s.raw
}

// MarshalJSON emits the scalar as the JSON type it was captured as.
func (s Scalar) MarshalJSON() ([]byte, error) {
	switch {
	case !s.isSet:
		return []byte("null"), nil
	case s.isNum:
		return []byte(strconv.FormatFloat(s.num, 'f', -1, 64)), nil
	default:
		return []byte(strconv.Quote(s.raw)), nil
	}
}

// UnmarshalJSON accepts a JSON string, number or null.
func (s *Scalar) UnmarshalJSON(b []byte) error {
	raw := string(b)
	if raw == "null" {
		*s = Scalar{}
		return nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*s = Number(f)
		return nil
	}
	unquoted, err := strconv.Unquote(raw)
	if err != nil {
		return fmt.Errorf("scalar must be a string, number or null: %s", raw)
	}
	*s = String(unquoted)
	return nil
}

// RawProduct is the extraction output before validation. Every field is
// optional: absence is a normal outcome of scraping an unstable DOM, not
// an error.
type RawProduct struct {
	Title            string            `json:"title,omitempty"`
	ImageURL         string            `json:"imageUrl,omitempty"`
	Description      string            `json:"description,omitempty"`
	SupplierPrice    Scalar            `json:"supplierPrice,omitempty"`
	RetailPrice      Scalar            `json:"retailPrice,omitempty"`
	ProfitPerSale    Scalar            `json:"profitPerSale,omitempty"`
	AdditionalImages []string          `json:"additionalImages,omitempty"`
	Specifications   map[string]string `json:"specifications,omitempty"`
	Rating           Scalar            `json:"rating,omitempty"`
	ReviewsCount     Scalar            `json:"reviewsCount,omitempty"`
	Category         string            `json:"category,omitempty"`
	TrendData        []float64         `json:"trendData,omitempty"`
	IsWinning        bool              `json:"isWinning,omitempty"`
	ProfitMargin     Scalar            `json:"profitMargin,omitempty"`
	ItemsSold        Scalar            `json:"itemsSold,omitempty"`
	FoundDate        string            `json:"foundDate,omitempty"`
	FilterTags       []string          `json:"filterTags,omitempty"`
	SupplierID       string            `json:"supplierId,omitempty"`
	SourceURL        string            `json:"sourceUrl,omitempty"`
	SourceID         string            `json:"sourceId,omitempty"`
}

// Product is the canonical normalized record produced by validation.
// Numeric fields default to zero and lists to empty rather than null for
// absent-but-expected values; only Rating stays nullable, since zero is a
// meaningful rating.
type Product struct {
	Title            string            `json:"title"`
	Description      string            `json:"description"`
	ImageURL         string            `json:"image_url"`
	BuyPrice         float64           `json:"buy_price"`
	SellPrice        float64           `json:"sell_price"`
	ProfitPerOrder   float64           `json:"profit_per_order"`
	CategoryID       string            `json:"category_id"`
	AdditionalImages []string          `json:"additional_images"`
	Specifications   map[string]string `json:"specifications"`
	Rating           *float64          `json:"rating"`
	ReviewsCount     int               `json:"reviews_count"`
	TrendData        []float64         `json:"trend_data"`
	SupplierID       string            `json:"supplier_id"`
}

// Metadata carries the source-side context of a scraped product. All of
// its fields are optional, so its transform always succeeds.
type Metadata struct {
	SourceURL    string    `json:"source_url"`
	SourceID     string    `json:"source_id"`
	IsWinning    bool      `json:"is_winning"`
	ProfitMargin float64   `json:"profit_margin"`
	ItemsSold    int       `json:"items_sold"`
	FoundDate    string    `json:"found_date"`
	FilterTags   []string  `json:"filter_tags"`
	ScrapedAt    time.Time `json:"scraped_at"`
}

// FieldError describes a field that failed structural validation.
type FieldError struct {
	Field    string `json:"field"`
	Error    string `json:"error"`
	Received string `json:"received"`
}

// ValidationResult is recomputed per extraction.
//
// Invariant: TransformedProduct is non-nil if and only if IsValid.
// RequiredFieldsComplete must never be true while any of title, image,
// buy price or sell price is empty or non-positive.
type ValidationResult struct {
	IsValid                bool         `json:"is_valid"`
	CompletenessScore      int          `json:"completeness_score"`
	RequiredFieldsComplete bool         `json:"required_fields_complete"`
	MissingFields          []string     `json:"missing_fields"`
	InvalidFields          []FieldError `json:"invalid_fields"`
	Warnings               []string     `json:"warnings"`
	TransformedProduct     *Product     `json:"transformed_product,omitempty"`
	TransformedMetadata    Metadata     `json:"transformed_metadata"`
}

// Error records one failure observed during a scrape. Recoverable errors
// degrade the result; non-recoverable ones end the attempt.
type Error struct {
	Message     string `json:"message"`
	Context     string `json:"context"`
	Recoverable bool   `json:"recoverable"`
}

// Result is the terminal output of one scrape attempt. Product, Metadata
// and SourceURL are populated only on success; Raw always carries
// whatever partial data extraction managed to capture.
type Result struct {
	RunID       string            `json:"run_id"`
	Success     bool              `json:"success"`
	Product     *Product          `json:"product,omitempty"`
	Metadata    *Metadata         `json:"metadata,omitempty"`
	SourceURL   string            `json:"source_url,omitempty"`
	Validation  *ValidationResult `json:"validation,omitempty"`
	Raw         *RawProduct       `json:"raw_data,omitempty"`
	Screenshots []string          `json:"screenshots"`
	StartedAt   time.Time         `json:"started_at"`
	FinishedAt  time.Time         `json:"finished_at"`
	Duration    time.Duration     `json:"duration_ms"`
	Errors      []Error           `json:"errors"`
}

// RecordError appends an error entry to the result.
func (r *Result) RecordError(context, message string, recoverable bool) {
	r.Errors = append(r.Errors, Error{
		Message:     message,
		Context:     context,
		Recoverable: recoverable,
	})
}
