package templates

import (
	"context"
	"io"
	"strings"

	"github.com/a-h/templ"
)

// LayoutParams describes a notification email.
type LayoutParams struct {
	Title       string
	Preheader   string
	Body        string
	ActionURL   string
	ActionLabel string
	Footer      string
}

// Layout renders a single-column notification email with inline styles.
// Every text field is HTML-escaped; Body keeps its line breaks.
func Layout(p LayoutParams) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var sb strings.Builder
		sb.WriteString(`<!DOCTYPE html><html><head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1"><title>`)
		sb.WriteString(templ.EscapeString(p.Title))
		sb.WriteString(`</title></head><body style="margin:0;padding:0;background:#f4f4f7;font-family:Helvetica,Arial,sans-serif;">`)
		if p.Preheader != "" {
			sb.WriteString(`<div style="display:none;max-height:0;overflow:hidden;">`)
			sb.WriteString(templ.EscapeString(p.Preheader))
			sb.WriteString(`</div>`)
		}
		sb.WriteString(`<table role="presentation" width="100%" cellpadding="0" cellspacing="0"><tr><td align="center" style="padding:24px;">`)
		sb.WriteString(`<table role="presentation" width="560" cellpadding="0" cellspacing="0" style="background:#ffffff;border-radius:8px;padding:32px;">`)
		sb.WriteString(`<tr><td><h1 style="margin:0 0 16px;font-size:20px;color:#111827;">`)
		sb.WriteString(templ.EscapeString(p.Title))
		sb.WriteString(`</h1>`)
		for _, line := range strings.Split(p.Body, "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			sb.WriteString(`<p style="margin:0 0 12px;font-size:15px;line-height:22px;color:#374151;">`)
			sb.WriteString(templ.EscapeString(line))
			sb.WriteString(`</p>`)
		}
		if p.ActionURL != "" {
			label := p.ActionLabel
			if label == "" {
				label = "View"
			}
			sb.WriteString(`<p style="margin:24px 0 0;"><a href="`)
			sb.WriteString(templ.EscapeString(string(templ.URL(p.ActionURL))))
			sb.WriteString(`" style="display:inline-block;padding:10px 20px;background:#2563eb;color:#ffffff;border-radius:6px;text-decoration:none;font-weight:600;">`)
			sb.WriteString(templ.EscapeString(label))
			sb.WriteString(`</a></p>`)
		}
		sb.WriteString(`</td></tr></table>`)
		if p.Footer != "" {
			sb.WriteString(`<p style="margin:16px 0 0;font-size:12px;color:#9ca3af;">`)
			sb.WriteString(templ.EscapeString(p.Footer))
			sb.WriteString(`</p>`)
		}
		sb.WriteString(`</td></tr></table></body></html>`)

		_, err := io.WriteString(w, sb.String())
		return err
	})
}

// Render renders c into a string, ready for SendEmailParams.BodyHTML.
func Render(ctx context.Context, c templ.Component) (string, error) {
	var sb strings.Builder
	if err := c.Render(ctx, &sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}
