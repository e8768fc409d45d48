package email

import (
	"bytes"
	"fmt"
	"html"
	"html/template"
	"regexp"
	"strings"
	"time"
)

const appName = "showtrack"

var layout = template.Must(template.New("layout").Parse(`<html>
<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
<div style="background: #4f46e5; padding: 24px; border-radius: 10px 10px 0 0; text-align: center;">
<h1 style="color: white; margin: 0; font-size: 26px;">{{.App}}</h1>
{{if .Tagline}}<p style="color: white; margin: 8px 0 0 0;">{{.Tagline}}</p>{{end}}
</div>
<div style="background: #f8f9fa; padding: 24px; border-radius: 0 0 10px 10px;">
{{.Content}}
<p style="color: #999; font-size: 13px; margin-top: 28px; text-align: center;">Sent by {{.App}}{{if .AppURL}} - <a href="{{.AppURL}}">open</a>{{end}}</p>
</div>
</body>
</html>`))

var notificationContent = template.Must(template.New("notification").Parse(`<h2 style="color: #333; margin-top: 0;">{{.Title}}</h2>
<p style="color: #555; font-size: 16px; line-height: 1.6;">{{.Body}}</p>
{{if .ShowTitle}}<div style="background: white; padding: 16px; border-radius: 8px;"><strong>{{.ShowTitle}}</strong></div>{{end}}`))

var previewContent = template.Must(template.New("preview").Parse(`<h2 style="color: #333; margin-top: 0;">This week's new episodes</h2>
<p style="color: #555;">You have {{.Count}} new episode{{if ne .Count 1}}s{{end}} airing this week.</p>
{{range .Days}}<div style="background: white; padding: 16px; border-radius: 8px; margin: 16px 0; border-left: 4px solid #4f46e5;">
<h3 style="margin: 0 0 8px 0; color: #4f46e5;">{{.Label}}</h3>
{{range .Items}}<div style="padding: 6px 0;"><strong>{{.Title}}</strong>{{if .Provider}} <span style="color: #999;">{{.Provider}}</span>{{end}}</div>
{{end}}</div>
{{end}}`))

// Renderer produces message bodies.
type Renderer struct {
	AppURL string
}

// Message is a rendered email.
type Message struct {
	Subject string
	HTML    string
}

func (r Renderer) wrap(tagline string, content template.HTML) (string, error) {
	var buf bytes.Buffer
	err := layout.Execute(&buf, struct {
		App     string
		AppURL  string
		Tagline string
		Content template.HTML
	}{appName, r.AppURL, tagline, content})
	if err != nil {
		return "", fmt.Errorf("render layout: %w", err)
	}
	return buf.String(), nil
}

// Notification renders a single notification.
func (r Renderer) Notification(title, body, showTitle string) (Message, error) {
	var buf bytes.Buffer
	err := notificationContent.Execute(&buf, struct{ Title, Body, ShowTitle string }{title, body, showTitle})
	if err != nil {
		return Message{}, fmt.Errorf("render notification: %w", err)
	}
	out, err := r.wrap("", template.HTML(buf.String()))
	if err != nil {
		return Message{}, err
	}
	return Message{Subject: appName + ": " + title, HTML: out}, nil
}

// PreviewItem is one upcoming episode in the weekly preview.
type PreviewItem struct {
	Title    string
	Provider string
	AirDate  time.Time
}

type previewDay struct {
	Label string
	Items []PreviewItem
}

// WeeklyPreview renders the upcoming-week digest. Items must be sorted by
// air date.
func (r Renderer) WeeklyPreview(items []PreviewItem) (Message, error) {
	var days []previewDay
	for _, it := range items {
		label := it.AirDate.Format("Monday, January 2")
		if n := len(days); n == 0 || days[n-1].Label != label {
			days = append(days, previewDay{Label: label})
		}
		days[len(days)-1].Items = append(days[len(days)-1].Items, it)
	}

	var buf bytes.Buffer
	err := previewContent.Execute(&buf, struct {
		Count int
		Days  []previewDay
	}{len(items), days})
	if err != nil {
		return Message{}, fmt.Errorf("render weekly preview: %w", err)
	}
	out, err := r.wrap("Your weekly preview", template.HTML(buf.String()))
	if err != nil {
		return Message{}, err
	}
	subject := fmt.Sprintf("This week: %d new episode", len(items))
	if len(items) != 1 {
		subject += "s"
	}
	return Message{Subject: subject, HTML: out}, nil
}

var (
	tagPattern   = regexp.MustCompile(`<[^>]*>`)
	blankPattern = regexp.MustCompile(`\n\s*\n+`)
)

// PlainText strips markup from an HTML body for the text part.
func PlainText(htmlBody string) string {
	s := tagPattern.ReplaceAllString(htmlBody, "\n")
	s = html.UnescapeString(s)
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	s = strings.Join(lines, "\n")
	s = blankPattern.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
