package report

import (
	_ "embed"
	"html/template"
	"regexp"
	"strings"
	"time"
)

//go:embed shell.gohtml
var shellSource string

var shellTemplate = template.Must(template.New("shell").Parse(shellSource))

// Markdown code fences the model sometimes wraps its HTML output in.
var (
	fenceHTMLOpen = regexp.MustCompile("(?m)^```html\\s*")
	fenceOpen     = regexp.MustCompile("(?m)^```\\s*")
	fenceClose    = regexp.MustCompile("(?m)\\s*```$")
)

// stripFences removes ``` and ```html markers from model output.
func stripFences(s string) string {
	s = fenceHTMLOpen.ReplaceAllString(s, "")
	s = fenceOpen.ReplaceAllString(s, "")
	return fenceClose.ReplaceAllString(s, "")
}

// renderShell wraps the report body in the full printable HTML document. The
// body is model- or fallback-produced HTML and is embedded as-is; the title
// is user input and gets escaped.
func renderShell(body, title string, now time.Time) (string, error) {
	if title == "" {
		title = "PROJE TOPLANTI ANALİZ RAPORU"
	}

	var b strings.Builder
	err := shellTemplate.Execute(&b, struct {
		Date  string
		Title string
		Body  template.HTML
	}{
		Date:  now.Format("02.01.2006 15:04:05"),
		Title: title,
		Body:  template.HTML(body),
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}
