// Package wallpaper holds the configuration record of an application-bound
// wallpaper, the field-level patches exchanged with the renderer, and the
// bookkeeping needed to undo previewed edits.
package wallpaper

// Application is the program a wallpaper is bound to. Path identifies it; Name
// is only a display label and may be empty.
type Application struct {
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	Path string `json:"path" yaml:"path"`
}

// Record is the configuration of one wallpaper
type Record struct {
	Name        string
	Application Application
	Filters     []Filter
	Source      Source
	Opacity     float64
}

// DefaultOpacity is the opacity of a freshly created wallpaper
const DefaultOpacity = 0.2

// Default returns the value a new wallpaper form starts from
func Default() Record {
	return Record{
		Filters: []Filter{WindowNameFilter("", StrategyContains)},
		Source:  Picture{},
		Opacity: DefaultOpacity,
	}
}

// Clone returns a copy that shares no mutable state with r
func (r Record) Clone() Record {
	r.Filters = cloneFilters(r.Filters)
	return r
}

// Equal reports whether every field of r and o is equal
func (r Record) Equal(o Record) bool {
	return Diff(r, o).IsEmpty()
}

// AppliesTo reports whether the wallpaper should be drawn behind a window of the
// application at appPath titled windowName. Every filter has to match.
func (r Record) AppliesTo(appPath, windowName string) bool {
	if r.Application.Path == "" || r.Application.Path != appPath {
		return false
	}
	for _, f := range r.Filters {
		if !f.Matches(windowName) {
			return false
		}
	}
	return true
}
