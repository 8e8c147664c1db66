// Package form validates resource forms from raw text input.
//
// A Schema lists typed fields with their rules. Validation coerces each raw
// value to its kind, then applies required, length, range, pattern and
// custom checks in that order and keeps the first failure per field.
// Refinements are cross-field or live-data rules evaluated after every field
// passed.
package form

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Kind is the type a raw value is coerced to.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
	KindTime
	KindEnum
)

// Field is one form input.
type Field struct {
	Name     string
	Label    string
	Kind     Kind
	Required bool
	Default  string
	MinLen   int
	MaxLen   int
	Min      *float64
	Max      *float64
	Pattern  *regexp.Regexp
	Message  string
	Options  []string
	Check    func(v any) string
}

// Option configures a Field.
type Option func(*Field)

func newField(kind Kind, name, label string, opts []Option) Field {
	f := Field{Name: name, Label: label, Kind: kind}
	if f.Label == "" {
		f.Label = name
	}
	for _, opt := range opts {
		opt(&f)
	}
	return f
}

// String declares a text field.
func String(name, label string, opts ...Option) Field {
	return newField(KindString, name, label, opts)
}

// Int declares an integer field.
func Int(name, label string, opts ...Option) Field {
	return newField(KindInt, name, label, opts)
}

// Float declares a decimal field.
func Float(name, label string, opts ...Option) Field {
	return newField(KindFloat, name, label, opts)
}

// Bool declares a checkbox field.
func Bool(name, label string, opts ...Option) Field {
	return newField(KindBool, name, label, opts)
}

// Time declares a date/time field.
func Time(name, label string, opts ...Option) Field {
	return newField(KindTime, name, label, opts)
}

// Enum declares a field restricted to options.
func Enum(name, label string, options []string, opts ...Option) Field {
	f := newField(KindEnum, name, label, opts)
	f.Options = options
	return f
}

// Required rejects empty input.
func Required() Option { return func(f *Field) { f.Required = true } }

// Default sets the initial raw value of a fresh form.
func Default(v string) Option { return func(f *Field) { f.Default = v } }

// Length bounds the rune length of text input. Zero disables a bound.
func Length(minLen, maxLen int) Option {
	return func(f *Field) { f.MinLen, f.MaxLen = minLen, maxLen }
}

// Min sets an inclusive lower bound on numeric input.
func Min(v float64) Option { return func(f *Field) { f.Min = &v } }

// Max sets an inclusive upper bound on numeric input.
func Max(v float64) Option { return func(f *Field) { f.Max = &v } }

// Match requires text input to match re; msg is reported on mismatch.
func Match(re *regexp.Regexp, msg string) Option {
	return func(f *Field) { f.Pattern, f.Message = re, msg }
}

// Custom adds a check on the coerced value. It returns a message on failure.
func Custom(fn func(v any) string) Option { return func(f *Field) { f.Check = fn } }

// Refinement is a rule over the whole form. Check returns a non-empty
// message to reject Field, or an error when the rule could not be evaluated.
type Refinement struct {
	Field string
	Check func(ctx context.Context, v Values) (string, error)
}

// Schema is an ordered set of fields plus refinements.
type Schema struct {
	fields      []Field
	refinements []Refinement
}

// NewSchema returns a schema over fields in display order.
func NewSchema(fields ...Field) *Schema {
	return &Schema{fields: fields}
}

// Refine appends a refinement and returns the schema.
func (s *Schema) Refine(r ...Refinement) *Schema {
	s.refinements = append(s.refinements, r...)
	return s
}

// Fields returns the fields in display order.
func (s *Schema) Fields() []Field {
	return slices.Clone(s.fields)
}

// Field looks up a field by name.
func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Defaults returns the raw default of every field.
func (s *Schema) Defaults() map[string]string {
	out := make(map[string]string, len(s.fields))
	for _, f := range s.fields {
		out[f.Name] = f.Default
	}
	return out
}

// ValidateField runs the field-level rules of one field.
func (s *Schema) ValidateField(name, raw string) (any, string) {
	f, ok := s.Field(name)
	if !ok {
		return nil, fmt.Sprintf("unknown field %q", name)
	}
	return f.validate(raw)
}

// Validate checks raw against every field, then against the refinements when
// no field failed. The returned error is non-nil only when a refinement could
// not be evaluated.
func (s *Schema) Validate(ctx context.Context, raw map[string]string) (Values, Errors, error) {
	values := make(Values, len(s.fields))
	var errs Errors
	for _, f := range s.fields {
		v, msg := f.validate(raw[f.Name])
		if msg != "" {
			errs = append(errs, FieldError{Field: f.Name, Message: msg})
			continue
		}
		values[f.Name] = v
	}
	if len(errs) > 0 {
		return values, errs, nil
	}

	for _, r := range s.refinements {
		msg, err := r.Check(ctx, values)
		if err != nil {
			return values, errs, fmt.Errorf("validating %s: %w", r.Field, err)
		}
		if msg != "" && !errs.Has(r.Field) {
			errs = append(errs, FieldError{Field: r.Field, Message: msg})
		}
	}
	return values, errs, nil
}

func (f Field) validate(raw string) (any, string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if f.Required {
			return nil, f.Label + " is required"
		}
		return f.zero(), ""
	}

	var v any
	switch f.Kind {
	case KindInt:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, f.Label + " must be a whole number"
		}
		if msg := f.checkRange(float64(n)); msg != "" {
			return nil, msg
		}
		v = n
	case KindFloat:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, f.Label + " must be a number"
		}
		if msg := f.checkRange(n); msg != "" {
			return nil, msg
		}
		v = n
	case KindBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, f.Label + " must be true or false"
		}
		v = b
	case KindTime:
		t, ok := parseTime(raw)
		if !ok {
			return nil, f.Label + " must be a date and time (YYYY-MM-DD HH:MM)"
		}
		v = t
	case KindEnum:
		if !slices.Contains(f.Options, raw) {
			return nil, fmt.Sprintf("%s must be one of %s", f.Label, strings.Join(f.Options, ", "))
		}
		v = raw
	default:
		n := len([]rune(raw))
		if f.MinLen > 0 && n < f.MinLen {
			return nil, fmt.Sprintf("%s must be at least %d characters", f.Label, f.MinLen)
		}
		if f.MaxLen > 0 && n > f.MaxLen {
			return nil, fmt.Sprintf("%s must be at most %d characters", f.Label, f.MaxLen)
		}
		if f.Pattern != nil && !f.Pattern.MatchString(raw) {
			if f.Message != "" {
				return nil, f.Message
			}
			return nil, f.Label + " has an invalid format"
		}
		v = raw
	}

	if f.Check != nil {
		if msg := f.Check(v); msg != "" {
			return nil, msg
		}
	}
	return v, ""
}

func (f Field) checkRange(n float64) string {
	if f.Min != nil && n < *f.Min {
		return fmt.Sprintf("%s must be at least %s", f.Label, formatNumber(*f.Min))
	}
	if f.Max != nil && n > *f.Max {
		return fmt.Sprintf("%s must be at most %s", f.Label, formatNumber(*f.Max))
	}
	return ""
}

func (f Field) zero() any {
	switch f.Kind {
	case KindInt:
		return 0
	case KindFloat:
		return 0.0
	case KindBool:
		return false
	case KindTime:
		return time.Time{}
	default:
		return ""
	}
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

func parseTime(raw string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}
