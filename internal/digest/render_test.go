package digest

import (
	"strings"
	"testing"
	"time"
)

func TestRenderTextLayout(t *testing.T) {
	msgs := []Message{
		msg(SourceSlack, "alice", "deploy finished", testNow.Add(-time.Hour)),
		msg(SourceMail, "bob", "quarterly report attached", testNow.Add(-2*time.Hour)),
	}
	d := Build(msgs, testNow)

	out := RenderText(d, Options{})

	if !strings.HasPrefix(out, "Daily Digest - March 14, 2025\n") {
		t.Fatalf("missing title line:\n%s", out)
	}
	if !strings.Contains(out, "Total Notifications: 2") {
		t.Fatalf("missing total line:\n%s", out)
	}
	if !strings.Contains(out, "=== SLACK (1 message) ===") {
		t.Fatalf("missing slack header:\n%s", out)
	}
	if !strings.Contains(out, "=== MAIL (1 message) ===") {
		t.Fatalf("missing mail header:\n%s", out)
	}
	if !strings.Contains(out, "- alice (#alice), March 14, 2025 at 8:30 AM") {
		t.Fatalf("missing slack entry line:\n%s", out)
	}
	if !strings.Contains(out, "  deploy finished") {
		t.Fatalf("missing preview line:\n%s", out)
	}
	// mail sorts before slack lexicographically
	if strings.Index(out, "=== MAIL") > strings.Index(out, "=== SLACK") {
		t.Fatalf("group sections out of order:\n%s", out)
	}
}

func TestRenderTextEmpty(t *testing.T) {
	out := RenderText(Build(nil, testNow), Options{})

	if !strings.Contains(out, "Total Notifications: 0") {
		t.Fatalf("missing zero total:\n%s", out)
	}
	if !strings.Contains(out, "No new notifications found.") {
		t.Fatalf("missing empty notice:\n%s", out)
	}
	if strings.Contains(out, "===") {
		t.Fatalf("empty digest rendered a group header:\n%s", out)
	}
}

func TestRenderTextPluralHeaders(t *testing.T) {
	msgs := []Message{
		msg(SourceSlack, "alice", "one", testNow),
		msg(SourceSlack, "bob", "two", testNow.Add(-time.Minute)),
	}
	out := RenderText(Build(msgs, testNow), Options{})

	if !strings.Contains(out, "=== SLACK (2 messages) ===") {
		t.Fatalf("plural header wrong:\n%s", out)
	}
}

func TestRenderIdempotent(t *testing.T) {
	msgs := []Message{
		msg(SourceSlack, "alice", "same input", testNow.Add(-time.Hour)),
		msg(SourceMail, "bob", "same input", testNow.Add(-time.Hour)),
	}
	d := Build(msgs, testNow)

	first := Render(d, Options{})
	for i := 0; i < 5; i++ {
		again := Render(d, Options{})
		if again.Plain != first.Plain {
			t.Fatal("plain rendering differs across identical calls")
		}
		if again.HTML != first.HTML {
			t.Fatal("HTML rendering differs across identical calls")
		}
	}
	if first.TotalCount != 2 {
		t.Fatalf("TotalCount = %d, want 2", first.TotalCount)
	}
}

func TestRenderHTMLEscapesUserContent(t *testing.T) {
	m := Message{
		Source:       SourceMail,
		Sender:       `<script>alert("x")</script>`,
		SenderDetail: "evil@example.com",
		Content:      `click <a href="http://evil">here</a> & win`,
		Timestamp:    testNow.Add(-time.Hour),
		Type:         TypeEmail,
	}
	out := RenderHTML(Build([]Message{m}, testNow), Options{})

	if strings.Contains(out, "<script>") {
		t.Fatalf("sender markup not escaped:\n%s", out)
	}
	if strings.Contains(out, `<a href="http://evil">`) {
		t.Fatalf("content markup not escaped:\n%s", out)
	}
	if !strings.Contains(out, "&lt;script&gt;") {
		t.Fatalf("escaped sender missing:\n%s", out)
	}
	if !strings.Contains(out, "&amp; win") {
		t.Fatalf("escaped ampersand missing:\n%s", out)
	}
}

func TestRenderHTMLSourceColors(t *testing.T) {
	msgs := []Message{
		msg(SourceSlack, "alice", "a", testNow),
		msg("pager", "duty", "b", testNow),
	}
	out := RenderHTML(Build(msgs, testNow), Options{})

	if !strings.Contains(out, "background-color: #4A154B") {
		t.Fatalf("slack header color missing:\n%s", out)
	}
	if !strings.Contains(out, "background-color: "+defaultSourceColor) {
		t.Fatalf("unknown source did not fall back to default color:\n%s", out)
	}
	if !strings.Contains(out, ">PAGER (1 message)<") {
		t.Fatalf("unknown source header missing:\n%s", out)
	}
}

func TestPreviewTruncation(t *testing.T) {
	long := strings.Repeat("word ", 100)
	got := preview(long, 20)
	if len([]rune(got)) != 23 { // 20 runes + "..."
		t.Fatalf("preview length = %d runes, want 23: %q", len([]rune(got)), got)
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("truncated preview missing ellipsis: %q", got)
	}

	if got := preview("short  and \n spaced", 160); got != "short and spaced" {
		t.Fatalf("whitespace flattening: %q", got)
	}

	// rune-safe truncation of multibyte content
	got = preview(strings.Repeat("é", 30), 10)
	if got != strings.Repeat("é", 10)+"..." {
		t.Fatalf("multibyte truncation wrong: %q", got)
	}
}

func TestRenderOptionsOverride(t *testing.T) {
	msgs := []Message{msg(SourceSlack, "alice", strings.Repeat("x", 50), testNow)}
	out := RenderText(Build(msgs, testNow), Options{Title: "Ops Digest", PreviewLength: 10})

	if !strings.HasPrefix(out, "Ops Digest - ") {
		t.Fatalf("custom title not applied:\n%s", out)
	}
	if !strings.Contains(out, "  "+strings.Repeat("x", 10)+"...") {
		t.Fatalf("custom preview length not applied:\n%s", out)
	}
}
