// File: internal/report/report.go

// Package report emits run results as CSV and JSON files and logs the
// operator-facing summary.
package report

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/prodscout/prodscout-cli/internal/scrape"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// csvColumns is the fixed column order of the batch export.
var csvColumns = []string{
	"title", "description", "image_url", "buy_price", "sell_price",
	"profit_margin", "rating", "reviews_count", "is_winning", "category",
	"additional_images", "source_url", "scraped_at",
}

// CSVWriter writes product rows with every field double-quoted.
// Downstream spreadsheet imports choke on mixed quoting, so quoting is
// unconditional; list fields join on semicolons to stay clear of the
// column separator.
type CSVWriter struct {
	file   *os.File
	writer *bufio.Writer
	mu     sync.Mutex
}

// NewCSVWriter creates the output file and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}

	w := &CSVWriter{file: f, writer: bufio.NewWriter(f)}
	if err := w.writeRow(csvColumns); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	return w, nil
}

// Write appends one row per result. Results that never produced a
// validation are skipped; invalid ones still get a best-effort row from
// their raw capture.
func (w *CSVWriter) Write(results []*scrape.Result) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, res := range results {
		if res.Validation == nil {
			continue
		}
		if err := w.writeRow(rowFor(res)); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (w *CSVWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return w.file.Close()
}

func (w *CSVWriter) writeRow(fields []string) error {
	_, err := w.writer.WriteString(quotedLine(fields))
	return err
}

func quotedLine(fields []string) string {
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = quote(f)
	}
	return strings.Join(quoted, ",") + "\n"
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func rowFor(res *scrape.Result) []string {
	v := res.Validation

	var (
		title, description, imageURL, category string
		additional                             []string
		buy, sell                              string
		rating, reviews                        string
	)
	if p := v.TransformedProduct; p != nil {
		title, description, imageURL = p.Title, p.Description, p.ImageURL
		category = p.CategoryID
		additional = p.AdditionalImages
		buy = formatPrice(p.BuyPrice)
		sell = formatPrice(p.SellPrice)
		if p.Rating != nil {
			rating = strconv.FormatFloat(*p.Rating, 'f', -1, 64)
		}
		reviews = strconv.Itoa(p.ReviewsCount)
	} else if raw := res.Raw; raw != nil {
		title, description, imageURL = raw.Title, raw.Description, raw.ImageURL
		category = raw.Category
		additional = raw.AdditionalImages
		buy = raw.SupplierPrice.Raw()
		sell = raw.RetailPrice.Raw()
		rating = raw.Rating.Raw()
		reviews = raw.ReviewsCount.Raw()
	}

	meta := v.TransformedMetadata
	scrapedAt := meta.ScrapedAt
	if scrapedAt.IsZero() {
		scrapedAt = res.FinishedAt
	}

	return []string{
		title,
		description,
		imageURL,
		buy,
		sell,
		formatPrice(meta.ProfitMargin),
		rating,
		reviews,
		strconv.FormatBool(meta.IsWinning),
		category,
		strings.Join(additional, ";"),
		meta.SourceURL,
		scrapedAt.UTC().Format(time.RFC3339),
	}
}

func formatPrice(f float64) string {
	if f == 0 {
		return ""
	}
	return strconv.FormatFloat(f, 'f', 2, 64)
}

// listingColumns is the fixed column order of the index-page export.
var listingColumns = []string{"url", "title", "price"}

// ListingRow is one index-page card as it lands in the listing export.
type ListingRow struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Price string `json:"price,omitempty"`
}

// WriteListingCSV writes the index-page export with the same
// unconditional quoting as the product CSV.
func WriteListingCSV(filename string, rows []ListingRow) error {
	if err := ensureDir(filename); err != nil {
		return err
	}
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}

	w := bufio.NewWriter(f)
	if _, err := w.WriteString(quotedLine(listingColumns)); err != nil {
		f.Close()
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range rows {
		if _, err := w.WriteString(quotedLine([]string{row.URL, row.Title, row.Price})); err != nil {
			f.Close()
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush csv records: %w", err)
	}
	return f.Close()
}

// WriteJSON writes v as indented JSON, creating parent directories as
// needed.
func WriteJSON(filename string, v any) error {
	if err := ensureDir(filename); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	if err := os.WriteFile(filename, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write json file: %w", err)
	}
	return nil
}

// SiblingJSONPath derives the companion .json path from a CSV path.
func SiblingJSONPath(csvPath string) string {
	ext := filepath.Ext(csvPath)
	return strings.TrimSuffix(csvPath, ext) + ".json"
}

// LogSummary prints the operator summary for one result: completeness,
// required-field status, and which fields came back empty.
func LogSummary(logger *zap.Logger, res *scrape.Result) {
	if res.Validation == nil {
		logger.Warn("Scrape produced no validation result.",
			zap.String("source_url", res.SourceURL),
			zap.Duration("duration", res.Duration))
		return
	}

	v := res.Validation
	logger.Info("Scrape summary.",
		zap.Bool("success", res.Success),
		zap.Int("completeness_pct", v.CompletenessScore),
		zap.Bool("required_fields_complete", v.RequiredFieldsComplete),
		zap.Int("screenshots", len(res.Screenshots)),
		zap.Duration("duration", res.Duration))

	if len(v.MissingFields) > 0 {
		logger.Warn("Fields missing from extraction; the site may have changed, review the selector table.",
			zap.Strings("missing_fields", v.MissingFields))
	}
	for _, fe := range v.InvalidFields {
		logger.Warn("Field failed validation.",
			zap.String("field", fe.Field),
			zap.String("error", fe.Error),
			zap.String("received", fe.Received))
	}
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
