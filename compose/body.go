package compose

import (
	"fmt"
	"regexp"
	"strings"

	"auto_social_publisher/generator"
)

// Footer is the boilerplate closing every mailing.
type Footer struct {
	Homepage    Link
	Unsubscribe string
}

const usefulLinksTitle = "**Liens utiles**"

// A placeholder followed by one to six plain words and then punctuation, a
// newline, a tag or the end of the text uses those words as its label.
var trailingLabel = regexp.MustCompile(`^([ \t]+)([\p{L}\p{N}'’-]+(?:[ \t]+[\p{L}\p{N}'’-]+){0,5})(?:[.,;:!?)\n<]|$)`)

// RenderEmailBody substitutes each link placeholder of a Markdown body with
// the next unused link, appends the links left over plus the homepage as a
// "Liens utiles" block, and ends with the unsubscribe notice exactly once.
// Placeholders found after every link was consumed are dropped.
func RenderEmailBody(body string, links []Link, footer Footer) string {
	unused := append([]Link(nil), links...)

	var b strings.Builder
	rest := body
	for {
		i := strings.Index(rest, generator.LinkPlaceholder)
		if i < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:i])
		rest = rest[i+len(generator.LinkPlaceholder):]
		if len(unused) == 0 {
			continue
		}
		l := unused[0]
		unused = unused[1:]

		if m := trailingLabel.FindStringSubmatchIndex(rest); m != nil {
			if s := b.String(); s != "" && !strings.HasSuffix(s, " ") && !strings.HasSuffix(s, "\n") {
				b.WriteString(rest[m[2]:m[3]])
			}
			fmt.Fprintf(&b, "[%s](%s)", rest[m[4]:m[5]], l.URL)
			rest = rest[m[5]:]
			continue
		}
		b.WriteString(inlineLink(l))
	}

	out := b.String()
	if footer.Unsubscribe != "" {
		out = strings.ReplaceAll(out, footer.Unsubscribe, "")
	}
	out = strings.TrimRight(out, " \t\n")

	extra := unused
	if home := footer.Homepage; home.URL != "" && !mentions(links, body, home.URL) {
		extra = append(extra, home)
	}
	if len(extra) > 0 {
		out += "\n\n" + usefulLinksTitle + "\n"
		for _, l := range extra {
			out += "\n- " + inlineLink(l)
		}
	}
	if footer.Unsubscribe != "" {
		out += "\n\n" + footer.Unsubscribe
	}
	return out + "\n"
}

func inlineLink(l Link) string {
	if l.Label == "" {
		return "<" + l.URL + ">"
	}
	return fmt.Sprintf("[%s](%s)", l.Label, l.URL)
}

// mentions reports whether rawURL is among links or literally in body.
func mentions(links []Link, body, rawURL string) bool {
	set := LinkSet{links: links}
	if set.Contains(rawURL) {
		return true
	}
	norm, ok := NormalizeURL(rawURL)
	return ok && strings.Contains(strings.ToLower(body), strings.ToLower(strings.TrimPrefix(norm, "https://")))
}
