package models

import "strings"

// Record is one knowledge base row
type Record struct {
	Content string `json:"content"`
	Source  string `json:"source"`
	Row     int    `json:"row"`
}

// Answer is the result of a single question
type Answer struct {
	Question string   `json:"question"`
	Text     string   `json:"answer"`
	Declined bool     `json:"declined"`
	Sources  []Record `json:"sources"`
}

// IsFallback reports whether text is the model declining to answer. Trailing
// punctuation, quotes and surrounding whitespace are ignored.
func IsFallback(text string) bool {
	t := strings.TrimSpace(text)
	t = strings.Trim(t, "'\"`.!")
	t = strings.ReplaceAll(t, "\u2019", "'")
	return strings.EqualFold(strings.TrimSpace(t), FallbackAnswer)
}
