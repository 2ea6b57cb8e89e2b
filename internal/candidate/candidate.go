// Package candidate decides which catalog items need a regenerated
// description.
package candidate

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"metamender/internal/media"
)

// Reasons reported by Evaluate.
const (
	ReasonMissing         = "missing"
	ReasonTooShort        = "too-short"
	ReasonAlreadyAdequate = "already-adequate"
)

// Policy holds the filter threshold.
type Policy struct {
	// MinLength is the number of characters (after trimming) a description
	// needs to be left alone.
	MinLength int
}

// Decision is the filter verdict for one item.
type Decision struct {
	Qualifies bool
	Reason    string
	Length    int
}

// NeedsRegeneration reports whether item's description is missing or shorter
// than the threshold.
func (p Policy) NeedsRegeneration(item media.Item) bool {
	return p.Evaluate(item).Qualifies
}

// Evaluate returns the verdict with a reason label for logging. Length is
// counted in runes over the NFC form so composed and decomposed accents count
// the same.
func (p Policy) Evaluate(item media.Item) Decision {
	trimmed := strings.TrimSpace(item.Overview)
	if trimmed == "" {
		return Decision{Qualifies: true, Reason: ReasonMissing}
	}
	length := utf8.RuneCountInString(norm.NFC.String(trimmed))
	if length < p.MinLength {
		return Decision{Qualifies: true, Reason: ReasonTooShort, Length: length}
	}
	return Decision{Reason: ReasonAlreadyAdequate, Length: length}
}
