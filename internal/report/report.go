// Package report carries collaborator failures to the user. Callers hand an
// error to a Reporter and do nothing else with it.
package report

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bryanchriswhite/Backdrop/internal/logger"
)

// Error is a failure with a human-readable message and a technical detail
type Error struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, e.Detail)
}

// New returns an Error
func New(code, message, detail string) *Error {
	return &Error{Code: code, Message: message, Detail: detail}
}

// Wrap turns err into an Error with message, keeping err's text as the detail.
// An err that already is an *Error is returned unchanged.
func Wrap(message string, err error) *Error {
	var re *Error
	if errors.As(err, &re) {
		return re
	}
	return &Error{Message: message, Detail: err.Error()}
}

const unknownMessage = "An unknown error occurred."

// Entry is an error as displayed
type Entry struct {
	Time    time.Time `json:"time"`
	Code    string    `json:"code,omitempty"`
	Message string    `json:"message"`
	Detail  string    `json:"detail,omitempty"`
}

// EntryFor converts err to what the user sees. A structured *Error keeps its
// message and detail; anything else is shown as an unknown error with the raw
// text as detail.
func EntryFor(err error) Entry {
	e := Entry{Time: time.Now()}
	var re *Error
	if errors.As(err, &re) {
		e.Code, e.Message, e.Detail = re.Code, re.Message, re.Detail
		return e
	}
	e.Message = unknownMessage
	e.Detail = err.Error()
	return e
}

// Format renders err the way the error dialog shows it
func Format(err error) string {
	e := EntryFor(err)
	if e.Detail == "" {
		return e.Message
	}
	return fmt.Sprintf("%s\nDetail: %s", e.Message, e.Detail)
}

// Reporter displays errors to the user
type Reporter interface {
	Report(err error)
}

// ReporterFunc adapts a function to Reporter
type ReporterFunc func(err error)

func (f ReporterFunc) Report(err error) { f(err) }

// Log writes reported errors to the component logger
type Log struct {
	Component string
}

func (l Log) Report(err error) {
	e := EntryFor(err)
	logger.WithComponent(l.Component).Error().
		Str("code", e.Code).
		Str("detail", e.Detail).
		Msg(e.Message)
}

// Multi fans a report out to several reporters
type Multi []Reporter

func (m Multi) Report(err error) {
	for _, r := range m {
		r.Report(err)
	}
}

// Collector keeps the most recent reports so a UI can poll them
type Collector struct {
	mu      sync.Mutex
	limit   int
	entries []Entry
}

// NewCollector keeps at most limit entries
func NewCollector(limit int) *Collector {
	if limit <= 0 {
		limit = 50
	}
	return &Collector{limit: limit}
}

func (c *Collector) Report(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, EntryFor(err))
	if over := len(c.entries) - c.limit; over > 0 {
		c.entries = append([]Entry(nil), c.entries[over:]...)
	}
}

// Entries returns the kept entries, oldest first
func (c *Collector) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Drain returns the kept entries and forgets them
func (c *Collector) Drain() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.entries
	c.entries = nil
	return out
}
