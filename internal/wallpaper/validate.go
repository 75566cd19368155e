package wallpaper

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const (
	MinNameLength = 2
	MaxNameLength = 100
)

// FieldError describes one invalid field of a form submission
type FieldError struct {
	Field   Field
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks a form submission before it reaches an edit session. The
// returned error joins one *FieldError per problem.
func Validate(r Record) error {
	var errs []error
	fail := func(f Field, format string, args ...any) {
		errs = append(errs, &FieldError{Field: f, Message: fmt.Sprintf(format, args...)})
	}

	name := strings.TrimSpace(r.Name)
	switch n := utf8.RuneCountInString(name); {
	case n == 0:
		fail(FieldName, "name is required")
	case n < MinNameLength:
		fail(FieldName, "name must be at least %d characters", MinNameLength)
	case n > MaxNameLength:
		fail(FieldName, "name must be at most %d characters", MaxNameLength)
	}

	if r.Application.Path == "" {
		fail(FieldApplication, "select the application to attach the wallpaper to")
	}

	for i, f := range r.Filters {
		if f.Kind != FilterWindowName {
			fail(FieldFilters, "filter %d: unknown filter type %q", i, f.Kind)
			continue
		}
		if !f.Strategy.Valid() {
			fail(FieldFilters, "filter %d: unknown match strategy %q", i, f.Strategy)
		}
	}

	switch {
	case r.Source == nil:
		fail(FieldSource, "source is required")
	case r.Source.Location() == "":
		fail(FieldSource, "%s location is required", r.Source.Kind())
	case IsLocal(r.Source) && !filepath.IsAbs(r.Source.Location()):
		fail(FieldSource, "%s location must be an absolute path", r.Source.Kind())
	}

	if math.IsNaN(r.Opacity) || r.Opacity < 0 || r.Opacity > 1 {
		fail(FieldOpacity, "opacity must be between 0 and 1")
	}

	return errors.Join(errs...)
}

// FieldErrors flattens the error returned by Validate
func FieldErrors(err error) []*FieldError {
	if err == nil {
		return nil
	}
	var out []*FieldError
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			out = append(out, FieldErrors(e)...)
		}
		return out
	}
	var fe *FieldError
	if errors.As(err, &fe) {
		out = append(out, fe)
	}
	return out
}
