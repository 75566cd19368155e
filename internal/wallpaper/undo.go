package wallpaper

// Accumulator is the running patch that returns a live renderer to the
// baseline. For every field it holds, the renderer currently shows something
// other than the baseline and the held value is the baseline value.
//
// The zero value is an empty accumulator. An Accumulator belongs to a single
// edit session and is not safe for concurrent use.
type Accumulator struct {
	undo Patch
}

// RecordDivergence captures, for every field set by changed that is not held
// yet, the value the field has in reference. A field is captured once per
// divergence: later edits of an already diverged field leave the recorded
// value alone. It returns the fields captured by this call.
func (a *Accumulator) RecordDivergence(changed Patch, reference Record) []Field {
	var captured []Field
	for _, f := range changed.Fields() {
		if a.undo.Has(f) {
			continue
		}
		a.undo.Take(f, reference)
		captured = append(captured, f)
	}
	return captured
}

// FoldReversions drops every held field whose edited value is back to the
// recorded value and returns those fields as a patch restoring them. The
// caller must send the returned patch, or the renderer keeps the old edit.
func (a *Accumulator) FoldReversions(edited Record) Patch {
	var restore Patch
	for _, f := range a.undo.Fields() {
		if !a.undo.Matches(f, edited) {
			continue
		}
		restore.Copy(f, a.undo)
		a.undo.Delete(f)
	}
	return restore
}

// Drain returns everything held and empties the accumulator
func (a *Accumulator) Drain() Patch {
	out := a.undo
	a.undo = Patch{}
	return out
}

// Pending returns a copy of the held patch
func (a *Accumulator) Pending() Patch {
	return a.undo.Clone()
}

// Has reports whether field f is currently diverged
func (a *Accumulator) Has(f Field) bool {
	return a.undo.Has(f)
}

// IsEmpty reports whether the renderer matches the baseline
func (a *Accumulator) IsEmpty() bool {
	return a.undo.IsEmpty()
}

// Clone returns an independent copy, used to stage an update that may be
// abandoned if the renderer call fails.
func (a *Accumulator) Clone() Accumulator {
	return Accumulator{undo: a.undo.Clone()}
}
