package wallpaper

import (
	"fmt"
	"strings"
)

// Field names one top-level field of a Record
type Field string

const (
	FieldName        Field = "name"
	FieldApplication Field = "application"
	FieldFilters     Field = "filters"
	FieldSource      Field = "source"
	FieldOpacity     Field = "opacity"
)

// Fields returns every Record field in declaration order
func Fields() []Field {
	return []Field{FieldName, FieldApplication, FieldFilters, FieldSource, FieldOpacity}
}

// Patch is a partial Record. A non-nil field means "set to this value", a nil
// field means "no change". Filters is a pointer so that "set to an empty list"
// stays distinct from "leave the list alone".
type Patch struct {
	Name        *string
	Application *Application
	Filters     *[]Filter
	Source      Source
	Opacity     *float64
}

// Full returns a patch that sets every field of r
func Full(r Record) Patch {
	var p Patch
	for _, f := range Fields() {
		p.Take(f, r)
	}
	return p
}

// Has reports whether the patch sets field f
func (p Patch) Has(f Field) bool {
	switch f {
	case FieldName:
		return p.Name != nil
	case FieldApplication:
		return p.Application != nil
	case FieldFilters:
		return p.Filters != nil
	case FieldSource:
		return p.Source != nil
	case FieldOpacity:
		return p.Opacity != nil
	}
	panic(fmt.Sprintf("wallpaper: unknown field %q", f))
}

// Fields returns the fields the patch sets, in declaration order
func (p Patch) Fields() []Field {
	var out []Field
	for _, f := range Fields() {
		if p.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// IsEmpty reports whether the patch changes nothing
func (p Patch) IsEmpty() bool {
	return len(p.Fields()) == 0
}

// Take sets field f of the patch to the value it has in r
func (p *Patch) Take(f Field, r Record) {
	switch f {
	case FieldName:
		v := r.Name
		p.Name = &v
	case FieldApplication:
		v := r.Application
		p.Application = &v
	case FieldFilters:
		v := cloneFilters(r.Filters)
		if v == nil {
			v = []Filter{}
		}
		p.Filters = &v
	case FieldSource:
		p.Source = r.Source
	case FieldOpacity:
		v := r.Opacity
		p.Opacity = &v
	default:
		panic(fmt.Sprintf("wallpaper: unknown field %q", f))
	}
}

// Copy sets field f of the patch to the value it has in o. If o does not set f,
// neither does p afterwards.
func (p *Patch) Copy(f Field, o Patch) {
	if !o.Has(f) {
		p.Delete(f)
		return
	}
	p.Take(f, o.ApplyTo(Record{}))
}

// Delete removes field f from the patch
func (p *Patch) Delete(f Field) {
	switch f {
	case FieldName:
		p.Name = nil
	case FieldApplication:
		p.Application = nil
	case FieldFilters:
		p.Filters = nil
	case FieldSource:
		p.Source = nil
	case FieldOpacity:
		p.Opacity = nil
	default:
		panic(fmt.Sprintf("wallpaper: unknown field %q", f))
	}
}

// Matches reports whether the patch sets f to the value f has in r. A patch
// that does not set f never matches.
func (p Patch) Matches(f Field, r Record) bool {
	if !p.Has(f) {
		return false
	}
	return fieldEqual(f, p.ApplyTo(r), r)
}

// Merge returns p with every field set by o overriding p's value
func (p Patch) Merge(o Patch) Patch {
	out := p.Clone()
	for _, f := range o.Fields() {
		out.Copy(f, o)
	}
	return out
}

// Clone returns a deep copy of the patch
func (p Patch) Clone() Patch {
	var out Patch
	base := p.ApplyTo(Record{})
	for _, f := range p.Fields() {
		out.Take(f, base)
	}
	return out
}

// ApplyTo returns r with every field set by the patch replaced
func (p Patch) ApplyTo(r Record) Record {
	out := r.Clone()
	if p.Name != nil {
		out.Name = *p.Name
	}
	if p.Application != nil {
		out.Application = *p.Application
	}
	if p.Filters != nil {
		out.Filters = cloneFilters(*p.Filters)
	}
	if p.Source != nil {
		out.Source = p.Source
	}
	if p.Opacity != nil {
		out.Opacity = *p.Opacity
	}
	return out
}

// String lists the patched fields, for logs
func (p Patch) String() string {
	fields := p.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = string(f)
	}
	return "{" + strings.Join(names, ",") + "}"
}
