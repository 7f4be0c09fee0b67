package book

import (
	"strings"

	"github.com/zlnvch/flipbook/models"
)

// Author is the local user text edits are attributed to.
type Author struct {
	Username string
	Color    string
}

// Segment derives per-author spans for a text edit. Pure appends extend the
// last span when it belongs to the same author, otherwise they add a new one.
// Any other edit collapses the history to a single span owned by the author.
// With no author the previous segments are returned untouched.
func Segment(prevText string, prev []models.TextSegment, newText string, author Author, now int64) []models.TextSegment {
	if author.Username == "" || newText == prevText {
		return prev
	}

	if prevText != "" && strings.HasPrefix(newText, prevText) {
		appended := newText[len(prevText):]

		if n := len(prev); n > 0 && prev[n-1].Username == author.Username {
			next := make([]models.TextSegment, n)
			copy(next, prev)
			next[n-1].Text += appended
			return next
		}

		next := make([]models.TextSegment, len(prev), len(prev)+1)
		copy(next, prev)
		return append(next, models.TextSegment{
			Username:  author.Username,
			Color:     author.Color,
			Text:      appended,
			Timestamp: now,
		})
	}

	return []models.TextSegment{{
		Username:  author.Username,
		Color:     author.Color,
		Text:      newText,
		Timestamp: now,
	}}
}

// Joined concatenates segment texts.
func Joined(segments []models.TextSegment) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteString(s.Text)
	}
	return b.String()
}
