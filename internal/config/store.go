package config

import (
	"fmt"
	"math"
	"reflect"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"

	"music-separator/internal/domain"
)

// ErrInvalidSettings is matched by every ValidationError.
var ErrInvalidSettings = errors.New("invalid settings")

// fieldOrder is the declaration order of validated fields; the first
// offending field in this order is the one reported.
var fieldOrder = []string{"chunkSize", "overlapLarge", "overlapSmall"}

// fieldRanges holds the human-readable range of each validated field.
var fieldRanges = map[string]string{
	"chunkSize":    "between 100000 and 10000000",
	"overlapLarge": "between 0.001 and 0.999",
	"overlapSmall": "between 0.001 and 0.999",
}

var validate = newValidator()

// newValidator reports fields by their JSON names so messages match what the UI edits.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidationError names the first settings field outside its range.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

// Error formats the offending field for dialogs and logs.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid settings: %s %s (got %v)", e.Field, e.Message, e.Value)
}

// Unwrap exposes ErrInvalidSettings for errors.Is.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidSettings
}

// Edit is a mutable working copy handed out by BeginEdit.
type Edit struct {
	domain.Settings
}

// SettingsStore holds the committed settings of one session.
type SettingsStore struct {
	mu        sync.RWMutex
	committed domain.Settings
}

// NewSettingsStore creates a store committed to initial, which must be valid.
func NewSettingsStore(initial domain.Settings) (*SettingsStore, error) {
	if err := Validate(initial); err != nil {
		return nil, errors.Wrap(err, "initial settings")
	}
	return &SettingsStore{committed: initial}, nil
}

// BeginEdit returns a working copy of the committed settings.
func (s *SettingsStore) BeginEdit() *Edit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &Edit{Settings: s.committed}
}

// Commit validates every field of edit and replaces the committed settings.
// On failure the committed settings are unchanged.
func (s *SettingsStore) Commit(edit *Edit) error {
	if edit == nil {
		return &ValidationError{Field: "settings", Message: "must not be empty"}
	}
	if err := Validate(edit.Settings); err != nil {
		return err
	}

	s.mu.Lock()
	s.committed = edit.Settings
	s.mu.Unlock()
	return nil
}

// Current returns a snapshot of the committed settings.
func (s *SettingsStore) Current() domain.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.committed
}

// Validate checks all numeric fields together and reports the first
// violation in field-declaration order.
func Validate(settings domain.Settings) error {
	values := map[string]any{
		"chunkSize":    settings.ChunkSize,
		"overlapLarge": settings.OverlapLarge,
		"overlapSmall": settings.OverlapSmall,
	}

	offending := make(map[string]bool, len(fieldOrder))
	if math.IsNaN(settings.OverlapLarge) {
		offending["overlapLarge"] = true
	}
	if math.IsNaN(settings.OverlapSmall) {
		offending["overlapSmall"] = true
	}

	if err := validate.Struct(settings); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return errors.Wrap(err, "validate settings")
		}
		for _, fieldErr := range fieldErrs {
			offending[fieldErr.Field()] = true
		}
	}

	for _, field := range fieldOrder {
		if offending[field] {
			return &ValidationError{
				Field:   field,
				Value:   values[field],
				Message: "must be " + fieldRanges[field],
			}
		}
	}
	return nil
}
