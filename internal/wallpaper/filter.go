package wallpaper

import (
	"slices"
	"strings"
)

// MatchStrategy decides how a filter pattern is compared with a window name
type MatchStrategy string

const (
	StrategyPrefix   MatchStrategy = "Prefix"
	StrategySuffix   MatchStrategy = "Suffix"
	StrategyContains MatchStrategy = "Contains"
	StrategyExact    MatchStrategy = "Exact"
)

// Valid reports whether s is one of the known strategies
func (s MatchStrategy) Valid() bool {
	switch s {
	case StrategyPrefix, StrategySuffix, StrategyContains, StrategyExact:
		return true
	}
	return false
}

// Match compares target with pattern using the strategy
func (s MatchStrategy) Match(target, pattern string) bool {
	switch s {
	case StrategyPrefix:
		return strings.HasPrefix(target, pattern)
	case StrategySuffix:
		return strings.HasSuffix(target, pattern)
	case StrategyContains:
		return strings.Contains(target, pattern)
	case StrategyExact:
		return target == pattern
	}
	return false
}

// FilterKind tags a window filter variant
type FilterKind string

const (
	FilterWindowName FilterKind = "WindowName"
)

// Filter narrows the windows of the target application a wallpaper is drawn behind.
// WindowName is the only variant so far.
type Filter struct {
	Kind     FilterKind    `json:"type" yaml:"type"`
	Pattern  string        `json:"name" yaml:"name"`
	Strategy MatchStrategy `json:"strategy" yaml:"strategy"`
}

// WindowNameFilter returns a filter on the window title
func WindowNameFilter(pattern string, strategy MatchStrategy) Filter {
	return Filter{Kind: FilterWindowName, Pattern: pattern, Strategy: strategy}
}

// Matches reports whether a window with the given title passes the filter
func (f Filter) Matches(windowName string) bool {
	switch f.Kind {
	case FilterWindowName:
		return f.Strategy.Match(windowName, f.Pattern)
	}
	return false
}

// FiltersEqual compares two filter lists element by element. A nil list and an
// empty list are the same state.
func FiltersEqual(a, b []Filter) bool {
	return slices.Equal(a, b)
}

func cloneFilters(f []Filter) []Filter {
	if f == nil {
		return nil
	}
	return slices.Clone(f)
}
