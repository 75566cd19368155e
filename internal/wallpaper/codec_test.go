package wallpaper

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestRecordJSONTaggedSource(t *testing.T) {
	r := desk()
	r.Source = YouTube{URL: "https://www.youtube.com/watch?v=abc"}

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"name": "Desk",
		"application": {"name": "Editor", "path": "/usr/bin/editor"},
		"filters": [{"type": "WindowName", "name": "main", "strategy": "Prefix"}],
		"source": {"type": "YouTube", "location": "https://www.youtube.com/watch?v=abc"},
		"opacity": 0.3
	}`, string(data))

	var back Record
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, r.Equal(back))
}

func TestRecordUnknownSourceType(t *testing.T) {
	var r Record
	err := json.Unmarshal([]byte(`{"name":"x","source":{"type":"Hologram","location":"/"}}`), &r)
	assert.ErrorContains(t, err, "Hologram")
}

func TestRecordYAML(t *testing.T) {
	r := desk()
	r.Source = LocalWebPage{Path: "/srv/index.html"}

	data, err := yaml.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(data), "type: LocalWebPage")

	var back Record
	require.NoError(t, yaml.Unmarshal(data, &back))
	assert.True(t, r.Equal(back))
}

func TestPatchJSONPresence(t *testing.T) {
	empty := []Filter{}
	opacity := 0.0
	p := Patch{Filters: &empty, Opacity: &opacity}

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"filters": [], "opacity": 0}`, string(data))

	var back Patch
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, []Field{FieldFilters, FieldOpacity}, back.Fields())

	var none Patch
	require.NoError(t, json.Unmarshal([]byte(`{}`), &none))
	assert.True(t, none.IsEmpty())
}
