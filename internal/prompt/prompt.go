// Package prompt builds the grounded question prompt from retrieved records.
package prompt

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"faq-rag/internal/models"
)

// DefaultContextLimit bounds the context block, in runes.
const DefaultContextLimit = 12000

type Prompt struct {
	Text    string
	Context string
	// Used are the records that made it into Context, in rank order.
	Used []models.Record
}

// Assemble joins the contents of records, in the given order, into the
// context block and renders the answer template. limit caps the context in
// runes; 0 or less means no cap. The top record is cut if it alone exceeds
// the limit. A later record that does not fit whole ends the context.
func Assemble(records []models.Record, question string, limit int) Prompt {
	var (
		b    strings.Builder
		used []models.Record
		size int
	)
	sepLen := utf8.RuneCountInString(models.ContextSeparator)
	for i, r := range records {
		n := utf8.RuneCountInString(r.Content)
		if i > 0 {
			n += sepLen
		}
		if limit > 0 && size+n > limit {
			if i == 0 {
				b.WriteString(cut(r.Content, limit))
				used = append(used, r)
			}
			break
		}
		if i > 0 {
			b.WriteString(models.ContextSeparator)
		}
		b.WriteString(r.Content)
		size += n
		used = append(used, r)
	}

	context := b.String()
	return Prompt{
		Text:    Render(context, question),
		Context: context,
		Used:    used,
	}
}

// Render fills the answer template.
func Render(context, question string) string {
	return fmt.Sprintf(models.AnswerPromptTemplate, context, question)
}

func cut(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
