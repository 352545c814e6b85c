package digest

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

var testNow = time.Date(2025, time.March, 14, 9, 30, 0, 0, time.UTC)

func msg(src SourceID, sender, content string, ts time.Time) Message {
	return Message{
		Source:       src,
		Sender:       sender,
		SenderDetail: "#" + sender,
		Content:      content,
		Timestamp:    ts,
		Type:         TypeChannel,
	}
}

func TestBuildGroupsBySourceExactly(t *testing.T) {
	msgs := []Message{
		msg(SourceSlack, "alice", "one", testNow.Add(-time.Hour)),
		msg(SourceMail, "bob", "two", testNow.Add(-2*time.Hour)),
		msg(SourceSlack, "carol", "three", testNow.Add(-30*time.Minute)),
	}

	d := Build(msgs, testNow)

	if got := d.Total(); got != 3 {
		t.Fatalf("Total() = %d, want 3", got)
	}
	if got := d.Count(SourceSlack); got != 2 {
		t.Fatalf("Count(slack) = %d, want 2", got)
	}
	if got := d.Count(SourceMail); got != 1 {
		t.Fatalf("Count(mail) = %d, want 1", got)
	}
	for _, id := range d.Sources() {
		for _, m := range d.Group(id) {
			if m.Source != id {
				t.Fatalf("message from %q filed under group %q", m.Source, id)
			}
		}
	}
}

func TestBuildGroupOrderNewestFirst(t *testing.T) {
	msgs := []Message{
		msg(SourceSlack, "alice", "oldest", testNow.Add(-3*time.Hour)),
		msg(SourceSlack, "bob", "newest", testNow.Add(-time.Minute)),
		msg(SourceSlack, "carol", "middle", testNow.Add(-time.Hour)),
	}

	d := Build(msgs, testNow)

	group := d.Group(SourceSlack)
	for i := 1; i < len(group); i++ {
		if group[i].Timestamp.After(group[i-1].Timestamp) {
			t.Fatalf("group not newest-first at index %d: %v after %v",
				i, group[i].Timestamp, group[i-1].Timestamp)
		}
	}
	if group[0].Content != "newest" || group[2].Content != "oldest" {
		t.Fatalf("unexpected order: %q, %q, %q", group[0].Content, group[1].Content, group[2].Content)
	}
}

func TestBuildTieBreakSenderThenInsertion(t *testing.T) {
	ts := testNow.Add(-time.Hour)
	msgs := []Message{
		msg(SourceSlack, "zed", "z first", ts),
		msg(SourceSlack, "alice", "a second", ts),
		msg(SourceSlack, "alice", "a third", ts),
	}

	d := Build(msgs, testNow)

	group := d.Group(SourceSlack)
	want := []string{"a second", "a third", "z first"}
	for i, w := range want {
		if group[i].Content != w {
			t.Fatalf("position %d = %q, want %q", i, group[i].Content, w)
		}
	}
}

func TestBuildDeterministicAcrossRuns(t *testing.T) {
	ts := testNow.Add(-time.Hour)
	msgs := []Message{
		msg(SourceMail, "dave", "mail one", ts),
		msg(SourceSlack, "alice", "same instant A", ts),
		msg(SourceSlack, "alice", "same instant B", ts),
		msg(SourceSlack, "bob", "later", testNow.Add(-time.Minute)),
	}

	first := Build(msgs, testNow)
	for i := 0; i < 10; i++ {
		again := Build(msgs, testNow)
		if !reflect.DeepEqual(first.Sources(), again.Sources()) {
			t.Fatalf("source order changed between runs: %v vs %v", first.Sources(), again.Sources())
		}
		for _, id := range first.Sources() {
			if !reflect.DeepEqual(first.Group(id), again.Group(id)) {
				t.Fatalf("group %q changed between runs", id)
			}
		}
	}
}

func TestBuildSourceDisplayOrderLexicographic(t *testing.T) {
	msgs := []Message{
		msg(SourceWhatsApp, "w", "w msg", testNow),
		msg(SourceSlack, "s", "s msg", testNow),
		msg(SourceMail, "m", "m msg", testNow),
	}

	d := Build(msgs, testNow)

	want := []SourceID{SourceMail, SourceSlack, SourceWhatsApp}
	if got := d.Sources(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Sources() = %v, want %v", got, want)
	}
}

func TestBuildCompleteness(t *testing.T) {
	var msgs []Message
	for i := 0; i < 25; i++ {
		src := SourceSlack
		if i%3 == 0 {
			src = SourceMail
		}
		msgs = append(msgs, msg(src, "sender", "content", testNow.Add(-time.Duration(i)*time.Minute)))
	}

	d := Build(msgs, testNow)

	sum := 0
	for _, id := range d.Sources() {
		sum += d.Count(id)
	}
	if sum != len(msgs) || d.Total() != len(msgs) {
		t.Fatalf("group sum %d, Total() %d, want %d", sum, d.Total(), len(msgs))
	}
}

func TestBuildEmptyInput(t *testing.T) {
	d := Build(nil, testNow)

	if d.Total() != 0 {
		t.Fatalf("Total() = %d, want 0", d.Total())
	}
	if got := d.Sources(); len(got) != 0 {
		t.Fatalf("Sources() = %v, want empty", got)
	}
	if !d.GeneratedAt().Equal(testNow) {
		t.Fatalf("GeneratedAt() = %v, want %v", d.GeneratedAt(), testNow)
	}
}

func TestBuildPanicsOnInvalidMessage(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Build did not panic on invalid message")
		}
	}()
	Build([]Message{{Source: SourceSlack}}, testNow)
}

func TestMessageValidate(t *testing.T) {
	valid := msg(SourceSlack, "alice", "hello", testNow)
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid message rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Message)
	}{
		{"empty source", func(m *Message) { m.Source = "" }},
		{"empty sender", func(m *Message) { m.Sender = "" }},
		{"empty sender detail", func(m *Message) { m.SenderDetail = "" }},
		{"empty content", func(m *Message) { m.Content = "" }},
		{"zero timestamp", func(m *Message) { m.Timestamp = time.Time{} }},
		{"empty type", func(m *Message) { m.Type = "" }},
	}
	for _, tc := range cases {
		m := valid
		tc.mutate(&m)
		err := m.Validate()
		if err == nil {
			t.Fatalf("%s: Validate() = nil, want error", tc.name)
		}
		if !IsInvalid(err) {
			t.Fatalf("%s: IsInvalid(%v) = false", tc.name, err)
		}
		if !strings.Contains(err.Error(), tc.name) {
			t.Fatalf("%s: error %q does not name the field", tc.name, err)
		}
	}
}
