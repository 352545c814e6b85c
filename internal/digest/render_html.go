package digest

import (
	"fmt"
	"html"
	"strings"
)

// sourceColors drives the per-source section header color. Unknown sources
// fall back to the neutral default.
var sourceColors = map[SourceID]string{
	SourceSlack:    "#4A154B",
	SourceMail:     "#EA4335",
	SourceWhatsApp: "#25D366",
}

const defaultSourceColor = "#3498db"

const htmlHead = `<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<style>
body { font-family: -apple-system, 'Segoe UI', Roboto, Arial, sans-serif; line-height: 1.6; color: #333; max-width: 800px; margin: 0 auto; padding: 20px; background-color: #f5f5f5; }
.container { background-color: white; border-radius: 8px; padding: 30px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
h1 { color: #2c3e50; border-bottom: 3px solid #3498db; padding-bottom: 10px; }
.summary { background-color: #ecf0f1; padding: 15px; border-radius: 5px; margin: 20px 0; }
.source-section { margin: 30px 0; }
.source-header { color: white; padding: 10px 15px; border-radius: 5px; font-size: 1.2em; font-weight: bold; }
.message { border-left: 4px solid #3498db; padding: 15px; margin: 15px 0; background-color: #f8f9fa; border-radius: 0 5px 5px 0; }
.message-sender { font-weight: bold; color: #2c3e50; font-size: 1.1em; }
.message-detail { color: #7f8c8d; font-size: 0.9em; }
.message-content { margin-top: 10px; color: #34495e; }
.message-time { color: #95a5a6; font-size: 0.85em; margin-top: 5px; }
.no-messages { text-align: center; color: #7f8c8d; padding: 40px; font-size: 1.1em; }
</style>
</head>
<body>
<div class="container">
`

const htmlFoot = `</div>
</body>
</html>
`

// RenderHTML renders the HTML version of a digest. Every user-originated
// string (sender, detail, content, source id) is escaped; a malicious
// message body cannot inject markup into the digest.
func RenderHTML(d *Digest, opts Options) string {
	var b strings.Builder
	b.WriteString(htmlHead)

	fmt.Fprintf(&b, "<h1>%s - %s</h1>\n", html.EscapeString(opts.title()), html.EscapeString(d.GeneratedAt().Format(dateFormat)))
	fmt.Fprintf(&b, `<div class="summary">Total Notifications: <strong>%d</strong></div>`+"\n", d.Total())

	if d.Total() == 0 {
		fmt.Fprintf(&b, `<div class="no-messages">%s</div>`+"\n", emptyNotice)
		b.WriteString(htmlFoot)
		return b.String()
	}

	limit := opts.previewLength()
	for _, id := range d.Sources() {
		msgs := d.Group(id)
		color, ok := sourceColors[id]
		if !ok {
			color = defaultSourceColor
		}

		b.WriteString(`<div class="source-section">` + "\n")
		fmt.Fprintf(&b, `<div class="source-header" style="background-color: %s">%s (%d %s)</div>`+"\n",
			color, html.EscapeString(strings.ToUpper(string(id))), len(msgs), plural(len(msgs), "message"))

		for _, m := range msgs {
			b.WriteString(`<div class="message">` + "\n")
			fmt.Fprintf(&b, `<div class="message-sender">%s</div>`+"\n", html.EscapeString(m.Sender))
			fmt.Fprintf(&b, `<div class="message-detail">%s</div>`+"\n", html.EscapeString(m.SenderDetail))
			fmt.Fprintf(&b, `<div class="message-content">%s</div>`+"\n", html.EscapeString(preview(m.Content, limit)))
			fmt.Fprintf(&b, `<div class="message-time">%s</div>`+"\n", html.EscapeString(m.Timestamp.Format(timestampFormat)))
			b.WriteString(`</div>` + "\n")
		}

		b.WriteString(`</div>` + "\n")
	}

	b.WriteString(htmlFoot)
	return b.String()
}
