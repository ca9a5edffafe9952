// Package classify decides whether a feed entry becomes a task, an event
// or nothing, from its title alone.
package classify

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"calsync/internal/model"
)

// Rules are the keyword sets. Matching is a case-insensitive, unanchored
// substring test.
type Rules struct {
	// Ignore keywords take absolute precedence over task keywords.
	Ignore []string
	Task   []string
}

// Classifier is safe for concurrent use once built.
type Classifier struct {
	ignore []string
	task   []string
}

// New folds the keyword sets once. Blank keywords are dropped; they would
// otherwise match every title.
func New(r Rules) *Classifier {
	return &Classifier{
		ignore: foldAll(r.Ignore),
		task:   foldAll(r.Task),
	}
}

// Classify returns KindIgnored, KindTask or KindEvent for summary.
func (c *Classifier) Classify(summary string) model.Kind {
	s := fold(summary)
	if containsAny(s, c.ignore) {
		return model.KindIgnored
	}
	if containsAny(s, c.task) {
		return model.KindTask
	}
	return model.KindEvent
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func foldAll(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if f := fold(strings.TrimSpace(kw)); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// fold composes accents (feeds mix NFC and NFD "í") and applies Unicode
// case folding.
func fold(s string) string {
	return cases.Fold().String(norm.NFC.String(s))
}
