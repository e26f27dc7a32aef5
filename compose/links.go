package compose

import (
	"net/url"
	"regexp"
	"strings"
)

// Link is a tracked (label, URL) pair of the email flow. An empty Label means
// the URL itself is shown.
type Link struct {
	Label string
	URL   string
}

// Text returns the visible text of the link.
func (l Link) Text() string {
	if l.Label != "" {
		return l.Label
	}
	return l.URL
}

// NormalizeURL defaults the scheme to https, lowercases scheme and host and
// drops a trailing slash. ok is false when no host can be found.
func NormalizeURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (!strings.Contains(u.Host, ".") && u.Hostname() != "localhost") {
		return "", false
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	return u.String(), true
}

// LinkSet is ordered and deduplicated by normalized URL.
type LinkSet struct {
	links []Link
}

// Merge inserts links in order. A link whose normalized URL is already
// present replaces the stored entry in place, keeping the old label only when
// the new one is empty. Links without a valid URL are skipped. Merge returns
// how many entries were added or updated.
func (s *LinkSet) Merge(links ...Link) int {
	n := 0
	for _, l := range links {
		norm, ok := NormalizeURL(l.URL)
		if !ok {
			continue
		}
		l = Link{Label: strings.TrimSpace(l.Label), URL: norm}
		if i := s.index(norm); i >= 0 {
			if l.Label == "" {
				l.Label = s.links[i].Label
			}
			s.links[i] = l
		} else {
			s.links = append(s.links, l)
		}
		n++
	}
	return n
}

// Contains reports whether rawURL, once normalized, is in the set.
func (s *LinkSet) Contains(rawURL string) bool {
	norm, ok := NormalizeURL(rawURL)
	return ok && s.index(norm) >= 0
}

func (s *LinkSet) Len() int { return len(s.links) }

// Links returns a copy in insertion order.
func (s *LinkSet) Links() []Link {
	return append([]Link(nil), s.links...)
}

func (s *LinkSet) index(norm string) int {
	for i, l := range s.links {
		if l.URL == norm {
			return i
		}
	}
	return -1
}

var (
	markdownLink = regexp.MustCompile(`\[([^\]]+)\]\(([^)\s]+)\)`)
	labelSep     = regexp.MustCompile(`^[\s\-–:|>]+|[\s\-–:|>]+$`)
)

// ParseLinks extracts links from free text. Markdown links keep their label.
// Otherwise each URL-looking token is a link, and the words preceding the
// first URL of a line become its label ("Billetterie : example.org/tickets").
func ParseLinks(text string) []Link {
	var out []Link
	for _, line := range strings.Split(text, "\n") {
		for _, m := range markdownLink.FindAllStringSubmatch(line, -1) {
			out = append(out, Link{Label: strings.TrimSpace(m[1]), URL: m[2]})
		}
		line = markdownLink.ReplaceAllString(line, " ")

		var words []string
		labelled := false
		for _, tok := range strings.Fields(line) {
			if !looksLikeURL(tok) {
				words = append(words, tok)
				continue
			}
			l := Link{URL: strings.TrimRight(tok, ".,;!?)")}
			if !labelled {
				l.Label = labelSep.ReplaceAllString(strings.Join(words, " "), "")
				labelled = true
			}
			words = nil
			out = append(out, l)
		}
	}
	return out
}

var bareDomain = regexp.MustCompile(`(?i)^[a-z0-9][a-z0-9-]*(\.[a-z0-9-]+)*\.[a-z]{2,}(:\d+)?([/?#]\S*)?$`)

func looksLikeURL(tok string) bool {
	lower := strings.ToLower(tok)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "www.") {
		return true
	}
	return bareDomain.MatchString(strings.TrimRight(tok, ".,;!?)"))
}
