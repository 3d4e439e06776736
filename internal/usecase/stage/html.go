package stage

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	fenceRe   = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*\n?(.*?)\\s*```$")
	doctypeRe = regexp.MustCompile(`(?i)<!DOCTYPE[^>]*>`)
	headRe    = regexp.MustCompile(`(?is)<head[^>]*>.*?</head>`)
	wrapperRe = regexp.MustCompile(`(?i)</?(html|body)[^>]*>`)
)

// CleanHTML strips code fences and document-level wrappers, leaving a body fragment.
func CleanHTML(s string) string {
	s = strings.TrimSpace(s)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	s = doctypeRe.ReplaceAllString(s, "")
	s = headRe.ReplaceAllString(s, "")
	s = wrapperRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// PlainText returns the text content of an HTML fragment.
func PlainText(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.StartTagToken:
			name, _ := z.TagName()
			if tag := string(name); tag == "script" || tag == "style" {
				skip++
			}
			b.WriteByte(' ')
		case html.EndTagToken:
			name, _ := z.TagName()
			if tag := string(name); (tag == "script" || tag == "style") && skip > 0 {
				skip--
			}
			b.WriteByte(' ')
		case html.SelfClosingTagToken:
			b.WriteByte(' ')
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

// WordCount counts whitespace-delimited tokens of the markup-stripped text.
func WordCount(s string) int {
	return len(strings.Fields(PlainText(s)))
}

const titleQuotes = "\"'`*_“”‘’ \t"

// cleanTitle removes tags, quotes and markdown emphasis around a title line.
func cleanTitle(s string) string {
	s = strings.TrimSpace(PlainText(CleanHTML(s)))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimLeft(s, "# ")
	s = strings.TrimSpace(strings.TrimPrefix(s, "Title:"))
	s = strings.Trim(s, titleQuotes)
	return strings.Join(strings.Fields(s), " ")
}

func isBlank(body string) bool { return strings.TrimSpace(PlainText(body)) == "" }

func wrapBody(body string) string {
	if isBlank(body) {
		return ""
	}
	if strings.HasPrefix(strings.TrimSpace(body), `<div class="post-body">`) {
		return body
	}
	return `<div class="post-body">` + body + `</div>`
}
