package email

import (
	"strings"
	"testing"
	"time"
)

func TestRenderNotification(t *testing.T) {
	r := Renderer{AppURL: "https://shows.example.com"}
	msg, err := r.Notification("Series finale: Show X", "Show X has ended.", "Show X")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if msg.Subject != "showtrack: Series finale: Show X" {
		t.Errorf("subject = %q", msg.Subject)
	}
	for _, want := range []string{"Show X has ended.", "<strong>Show X</strong>", "https://shows.example.com"} {
		if !strings.Contains(msg.HTML, want) {
			t.Errorf("html missing %q", want)
		}
	}
}

func TestRenderNotificationEscapes(t *testing.T) {
	msg, err := Renderer{}.Notification("<script>", "a & b", "")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(msg.HTML, "<script>") {
		t.Error("title was not escaped")
	}
}

func TestRenderWeeklyPreview(t *testing.T) {
	d1 := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	msg, err := Renderer{}.WeeklyPreview([]PreviewItem{
		{Title: "Alpha", Provider: "Netflix", AirDate: d1},
		{Title: "Beta", Provider: "Hulu", AirDate: d1},
		{Title: "Gamma", AirDate: d2},
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if msg.Subject != "This week: 3 new episodes" {
		t.Errorf("subject = %q", msg.Subject)
	}
	if strings.Count(msg.HTML, "<h3") != 2 {
		t.Errorf("expected two day sections, got %d", strings.Count(msg.HTML, "<h3"))
	}
	if !strings.Contains(msg.HTML, "Monday, March 2") {
		t.Error("missing day label")
	}
}

func TestPlainText(t *testing.T) {
	got := PlainText("<h2>Title</h2>\n<p>Line one</p><p>Line &quot;two&quot;</p>")
	want := "Title\n\nLine one\n\nLine \"two\""
	if got != want {
		t.Errorf("PlainText = %q, want %q", got, want)
	}
}
