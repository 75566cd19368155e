package wallpaper

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// sourceWire is the tagged form of a Source: {"type": "Video", "location": "..."}
type sourceWire struct {
	Type     SourceKind `json:"type" yaml:"type"`
	Location string     `json:"location" yaml:"location"`
}

type recordWire struct {
	Name        string      `json:"name" yaml:"name"`
	Application Application `json:"application" yaml:"application"`
	Filters     []Filter    `json:"filters" yaml:"filters"`
	Source      *sourceWire `json:"source" yaml:"source"`
	Opacity     float64     `json:"opacity" yaml:"opacity"`
}

type patchWire struct {
	Name        *string      `json:"name,omitempty"`
	Application *Application `json:"application,omitempty"`
	Filters     *[]Filter    `json:"filters,omitempty"`
	Source      *sourceWire  `json:"source,omitempty"`
	Opacity     *float64     `json:"opacity,omitempty"`
}

func encodeSource(s Source) *sourceWire {
	if s == nil {
		return nil
	}
	return &sourceWire{Type: s.Kind(), Location: s.Location()}
}

func decodeSource(w *sourceWire) (Source, error) {
	if w == nil {
		return nil, nil
	}
	return NewSource(w.Type, w.Location)
}

func (r Record) toWire() recordWire {
	filters := cloneFilters(r.Filters)
	if filters == nil {
		filters = []Filter{}
	}
	return recordWire{
		Name:        r.Name,
		Application: r.Application,
		Filters:     filters,
		Source:      encodeSource(r.Source),
		Opacity:     r.Opacity,
	}
}

func (w recordWire) toRecord() (Record, error) {
	src, err := decodeSource(w.Source)
	if err != nil {
		return Record{}, err
	}
	return Record{
		Name:        w.Name,
		Application: w.Application,
		Filters:     w.Filters,
		Source:      src,
		Opacity:     w.Opacity,
	}, nil
}

// MarshalJSON encodes the record with its source as a tagged object
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.toWire())
}

// UnmarshalJSON decodes a record written by MarshalJSON
func (r *Record) UnmarshalJSON(data []byte) error {
	var w recordWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	rec, err := w.toRecord()
	if err != nil {
		return fmt.Errorf("failed to decode wallpaper: %w", err)
	}
	*r = rec
	return nil
}

// MarshalYAML encodes the record for the config file
func (r Record) MarshalYAML() (interface{}, error) {
	return r.toWire(), nil
}

// UnmarshalYAML decodes a record from the config file
func (r *Record) UnmarshalYAML(node *yaml.Node) error {
	var w recordWire
	if err := node.Decode(&w); err != nil {
		return err
	}
	rec, err := w.toRecord()
	if err != nil {
		return fmt.Errorf("failed to decode wallpaper at line %d: %w", node.Line, err)
	}
	*r = rec
	return nil
}

// MarshalJSON encodes only the fields the patch sets. An explicitly empty
// filter list is written as [].
func (p Patch) MarshalJSON() ([]byte, error) {
	return json.Marshal(patchWire{
		Name:        p.Name,
		Application: p.Application,
		Filters:     p.Filters,
		Source:      encodeSource(p.Source),
		Opacity:     p.Opacity,
	})
}

// UnmarshalJSON decodes a patch; absent and null fields are left unset
func (p *Patch) UnmarshalJSON(data []byte) error {
	var w patchWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	src, err := decodeSource(w.Source)
	if err != nil {
		return fmt.Errorf("failed to decode patch: %w", err)
	}
	*p = Patch{
		Name:        w.Name,
		Application: w.Application,
		Filters:     w.Filters,
		Source:      src,
		Opacity:     w.Opacity,
	}
	return nil
}
