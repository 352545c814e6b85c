package digest

import (
	"strings"
	"unicode/utf8"
)

const (
	// DefaultPreviewLength bounds content previews when Options.PreviewLength
	// is zero. Truncation below this is always explicit, never silent.
	DefaultPreviewLength = 160

	DefaultTitle = "Daily Digest"

	dateFormat      = "January 2, 2006"
	timestampFormat = "January 2, 2006 at 3:04 PM"

	emptyNotice = "No new notifications found."
)

// Options tunes rendering. The zero value uses defaults.
type Options struct {
	Title         string
	PreviewLength int
}

func (o Options) title() string {
	if strings.TrimSpace(o.Title) == "" {
		return DefaultTitle
	}
	return o.Title
}

func (o Options) previewLength() int {
	if o.PreviewLength <= 0 {
		return DefaultPreviewLength
	}
	return o.PreviewLength
}

// Render produces both renderings of a digest. Rendering is a pure function
// of the digest and options: identical input yields byte-identical output.
func Render(d *Digest, opts Options) Rendered {
	return Rendered{
		Plain:       RenderText(d, opts),
		HTML:        RenderHTML(d, opts),
		TotalCount:  d.Total(),
		GeneratedAt: d.GeneratedAt(),
	}
}

// preview flattens whitespace and bounds the content to limit runes.
func preview(content string, limit int) string {
	s := strings.Join(strings.Fields(content), " ")
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "..."
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
