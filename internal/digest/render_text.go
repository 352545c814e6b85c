package digest

import (
	"fmt"
	"strings"
)

// RenderText renders the plain-text version of a digest.
func RenderText(d *Digest, opts Options) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s - %s\n", opts.title(), d.GeneratedAt().Format(dateFormat))
	fmt.Fprintf(&b, "Total Notifications: %d\n\n", d.Total())

	if d.Total() == 0 {
		b.WriteString(emptyNotice)
		b.WriteString("\n")
		return b.String()
	}

	limit := opts.previewLength()
	for _, id := range d.Sources() {
		msgs := d.Group(id)
		fmt.Fprintf(&b, "=== %s (%d %s) ===\n\n", strings.ToUpper(string(id)), len(msgs), plural(len(msgs), "message"))

		for _, m := range msgs {
			fmt.Fprintf(&b, "- %s (%s), %s\n", m.Sender, m.SenderDetail, m.Timestamp.Format(timestampFormat))
			fmt.Fprintf(&b, "  %s\n\n", preview(m.Content, limit))
		}
	}

	return b.String()
}
