// Package segmenter recognizes book, chapter and section headings line by line.
package segmenter

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind identifies the structural boundary a heading line opens.
type Kind int

const (
	None Kind = iota
	Book
	Chapter
	Section
)

func (k Kind) String() string {
	switch k {
	case Book:
		return "book"
	case Chapter:
		return "chapter"
	case Section:
		return "section"
	default:
		return "none"
	}
}

// Event is the structural event derived from a single line.
type Event struct {
	Kind  Kind
	ID    string
	Title string
}

// Label renders the human-readable section label, e.g. "§ 1. — Bailli".
// For books and chapters it returns the bare identifier.
func (e Event) Label() string {
	if e.Kind == Section {
		return fmt.Sprintf("§ %s. — %s", e.ID, e.Title)
	}
	return e.ID
}

type rule struct {
	kind    Kind
	pattern *regexp.Regexp
	build   func(m []string) Event
}

// rules are evaluated in priority order; the first match wins.
var rules = []rule{
	{
		kind:    Book,
		pattern: regexp.MustCompile(`^LIVRE\s+([IVX]+)`),
		build:   func(m []string) Event { return Event{Kind: Book, ID: m[1]} },
	},
	{
		kind:    Chapter,
		pattern: regexp.MustCompile(`^CHAPITRE\s+([IVX]+)`),
		build:   func(m []string) Event { return Event{Kind: Chapter, ID: m[1]} },
	},
	{
		kind:    Section,
		pattern: regexp.MustCompile(`^§\s*(\d+(?:er)?)\.\s*[—-]?\s*(.+)$`),
		build: func(m []string) Event {
			return Event{Kind: Section, ID: m[1], Title: strings.TrimSpace(m[2])}
		},
	},
}

// Classify returns the structural event opened by line, if any.
// Lines that match no heading pattern are body text and yield false.
func Classify(line string) (Event, bool) {
	for _, r := range rules {
		if m := r.pattern.FindStringSubmatch(line); m != nil {
			return r.build(m), true
		}
	}
	return Event{}, false
}
