package templates

import (
	"context"
	"io"
	"strings"

	"github.com/a-h/templ"
)

// Link is a call to action rendered as a button.
type Link struct {
	Label string
	URL   string
}

// Message is the content of a notification email.
type Message struct {
	Title   string
	Body    string
	Links   []Link
	Footer  string
	Preview string
}

const (
	bodyStyle   = "margin:0;padding:24px;background:#f4f5f7;font-family:-apple-system,Segoe UI,Helvetica,Arial,sans-serif;color:#1f2933;"
	cardStyle   = "max-width:560px;margin:0 auto;background:#ffffff;border-radius:8px;padding:32px;"
	titleStyle  = "margin:0 0 16px;font-size:20px;line-height:28px;"
	textStyle   = "margin:0 0 24px;font-size:15px;line-height:24px;white-space:pre-line;"
	buttonStyle = "display:inline-block;margin:0 8px 8px 0;padding:10px 18px;border-radius:6px;background:#2563eb;color:#ffffff;text-decoration:none;font-size:14px;"
	footerStyle = "max-width:560px;margin:16px auto 0;font-size:12px;color:#7b8794;text-align:center;"
)

// Notification renders m as a single-card HTML email. Link URLs go through
// templ.URL, so script schemes are replaced with a harmless placeholder.
func Notification(m Message) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString(`<!DOCTYPE html><html><head><meta charset="utf-8"><title>`)
		b.WriteString(templ.EscapeString(m.Title))
		b.WriteString(`</title></head><body style="` + bodyStyle + `">`)
		if m.Preview != "" {
			b.WriteString(`<div style="display:none;max-height:0;overflow:hidden;">`)
			b.WriteString(templ.EscapeString(m.Preview))
			b.WriteString(`</div>`)
		}
		b.WriteString(`<div style="` + cardStyle + `">`)
		b.WriteString(`<h1 style="` + titleStyle + `">` + templ.EscapeString(m.Title) + `</h1>`)
		b.WriteString(`<p style="` + textStyle + `">` + templ.EscapeString(m.Body) + `</p>`)
		for _, l := range m.Links {
			href := string(templ.URL(l.URL))
			b.WriteString(`<a href="` + templ.EscapeString(href) + `" style="` + buttonStyle + `">`)
			b.WriteString(templ.EscapeString(l.Label))
			b.WriteString(`</a>`)
		}
		b.WriteString(`</div>`)
		if m.Footer != "" {
			b.WriteString(`<p style="` + footerStyle + `">` + templ.EscapeString(m.Footer) + `</p>`)
		}
		b.WriteString(`</body></html>`)

		_, err := io.WriteString(w, b.String())
		return err
	})
}

// PlainText renders m for the text/plain part.
func PlainText(m Message) string {
	var b strings.Builder
	b.WriteString(m.Title)
	b.WriteString("\n\n")
	b.WriteString(m.Body)
	b.WriteString("\n")
	for _, l := range m.Links {
		b.WriteString("\n")
		b.WriteString(l.Label)
		b.WriteString(": ")
		b.WriteString(l.URL)
	}
	if m.Footer != "" {
		b.WriteString("\n\n")
		b.WriteString(m.Footer)
	}
	return b.String()
}
