package wallpaper

import (
	"fmt"
	"math"
)

// Diff returns the fields of candidate that differ from reference. Strings,
// numbers and the application compare by value, filters element by element and
// sources by variant and fields. Diff(x, x) is always empty.
func Diff(reference, candidate Record) Patch {
	var p Patch
	for _, f := range Fields() {
		if !fieldEqual(f, reference, candidate) {
			p.Take(f, candidate)
		}
	}
	return p
}

// DiffFrom is Diff against an optional reference. A nil reference is a record
// that does not exist yet, so every field counts as changed.
func DiffFrom(reference *Record, candidate Record) Patch {
	if reference == nil {
		return Full(candidate)
	}
	return Diff(*reference, candidate)
}

func fieldEqual(f Field, a, b Record) bool {
	switch f {
	case FieldName:
		return a.Name == b.Name
	case FieldApplication:
		return a.Application == b.Application
	case FieldFilters:
		return FiltersEqual(a.Filters, b.Filters)
	case FieldSource:
		return a.Source == b.Source
	case FieldOpacity:
		return a.Opacity == b.Opacity || (math.IsNaN(a.Opacity) && math.IsNaN(b.Opacity))
	}
	panic(fmt.Sprintf("wallpaper: unknown field %q", f))
}
