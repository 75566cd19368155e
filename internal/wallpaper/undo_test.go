package wallpaper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// preview runs one try cycle the way an edit session does and returns the
// outgoing patch.
func preview(acc *Accumulator, applied, edited Record) Patch {
	out := Diff(applied, edited)
	acc.RecordDivergence(out, applied)
	return out.Merge(acc.FoldReversions(edited))
}

func withOpacity(r Record, v float64) Record {
	r.Opacity = v
	return r
}

func TestAccumulatorNoDoubleCapture(t *testing.T) {
	var acc Accumulator
	base := withOpacity(desk(), 0.2)

	first := withOpacity(base, 0.5)
	preview(&acc, base, first)
	second := withOpacity(base, 0.8)
	preview(&acc, first, second)

	pending := acc.Pending()
	require.True(t, pending.Has(FieldOpacity))
	assert.Equal(t, 0.2, *pending.Opacity)
}

func TestAccumulatorRevertToOriginal(t *testing.T) {
	var acc Accumulator
	base := desk()
	base.Name = "A"

	b := base.Clone()
	b.Name = "B"
	out := preview(&acc, base, b)
	assert.Equal(t, "B", *out.Name)
	assert.True(t, acc.Has(FieldName))

	out = preview(&acc, b, base)
	require.True(t, out.Has(FieldName), "the revert must be sent explicitly")
	assert.Equal(t, "A", *out.Name)
	assert.False(t, acc.Has(FieldName))
	assert.True(t, acc.IsEmpty())
}

func TestAccumulatorScenario(t *testing.T) {
	var acc Accumulator
	base := Record{Name: "Desk", Opacity: 0.3}

	edited := withOpacity(base, 0.6)
	out := preview(&acc, base, edited)
	assert.Equal(t, []Field{FieldOpacity}, out.Fields())
	assert.Equal(t, 0.6, *out.Opacity)
	assert.Equal(t, 0.3, *acc.Pending().Opacity)

	back := withOpacity(base, 0.3)
	out = preview(&acc, edited, back)
	assert.Equal(t, []Field{FieldOpacity}, out.Fields())
	assert.Equal(t, 0.3, *out.Opacity)
	assert.True(t, acc.IsEmpty())

	assert.True(t, acc.Drain().IsEmpty())
}

func TestAccumulatorSoundness(t *testing.T) {
	base := desk()
	edits := []func(r *Record){
		func(r *Record) { r.Opacity = 0.9 },
		func(r *Record) { r.Name = "Other" },
		func(r *Record) { r.Source = YouTube{URL: "https://youtu.be/x"} },
		func(r *Record) { r.Opacity = 0.3 },
		func(r *Record) { r.Filters = nil },
		func(r *Record) { r.Name = "Desk" },
		func(r *Record) { r.Application = Application{Path: "/usr/bin/other"} },
		func(r *Record) { r.Filters = []Filter{WindowNameFilter("main", StrategyPrefix)} },
	}

	var acc Accumulator
	live := base.Clone()
	edited := base.Clone()
	for i, edit := range edits {
		edit(&edited)
		out := preview(&acc, live, edited)
		live = out.ApplyTo(live)
		require.True(t, Diff(edited, live).IsEmpty(), "step %d: renderer must show the edit", i)

		restored := acc.Pending().ApplyTo(live)
		assert.True(t, Diff(base, restored).IsEmpty(), "step %d: undo must restore the baseline, left %s", i, Diff(base, restored))
	}
}

func TestAccumulatorDrain(t *testing.T) {
	var acc Accumulator
	base := desk()
	edited := withOpacity(base, 1)
	acc.RecordDivergence(Diff(base, edited), base)

	drained := acc.Drain()
	assert.Equal(t, []Field{FieldOpacity}, drained.Fields())
	assert.True(t, acc.IsEmpty())
}

func TestAccumulatorCloneIsIndependent(t *testing.T) {
	var acc Accumulator
	base := desk()
	staged := acc.Clone()
	staged.RecordDivergence(Diff(base, withOpacity(base, 1)), base)

	assert.True(t, acc.IsEmpty())
	assert.False(t, staged.IsEmpty())
}
