// File: internal/scrape/fieldlog.go
package scrape

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

const fieldValueTruncateAt = 80

// StepLogger provides the run-level narration the operators rely on: a
// monotonically increasing step counter, operation timers, and a ✓/✗
// status line per extracted field. Completeness of scraped data is the
// primary operational concern, so this reporting is a first-class part of
// the pipeline, not debug noise.
type StepLogger struct {
	logger *zap.Logger
	step   int
}

// NewStepLogger wraps a component logger.
func NewStepLogger(logger *zap.Logger) *StepLogger {
	return &StepLogger{logger: logger}
}

// Step logs a numbered pipeline stage and returns the step number.
func (s *StepLogger) Step(name string) int {
	s.step++
	s.logger.Info(fmt.Sprintf("Step %d: %s", s.step, name))
	return s.step
}

// Timer logs the start of a named operation and returns a stop function
// that logs its duration.
func (s *StepLogger) Timer(name string) func() {
	start := time.Now()
	s.logger.Debug("Started.", zap.String("operation", name))
	return func() {
		s.logger.Info("Finished.",
			zap.String("operation", name),
			zap.Duration("elapsed", time.Since(start)))
	}
}

// Field logs the outcome of one field extraction. Long values are
// truncated; a miss is logged at the same level as a hit because misses
// are the signal operators act on.
func (s *StepLogger) Field(name string, value string, ok bool) {
	if !ok {
		s.logger.Info("✗ "+name, zap.String("status", "missing"))
		return
	}
	s.logger.Info("✓ "+name, zap.String("value", truncate(value)))
}

// FieldCount logs a list-valued field by its element count.
func (s *StepLogger) FieldCount(name string, n int) {
	if n == 0 {
		s.logger.Info("✗ "+name, zap.String("status", "missing"))
		return
	}
	s.logger.Info("✓ "+name, zap.Int("count", n))
}

func truncate(v string) string {
	if len(v) <= fieldValueTruncateAt {
		return v
	}
	return v[:fieldValueTruncateAt] + "…"
}
