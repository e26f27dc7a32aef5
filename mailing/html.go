package mailing

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

var (
	headingRe = regexp.MustCompile(`(?s)<h([1-6])[^>]*>(.*?)</h[1-6]>`)
	anchorRe  = regexp.MustCompile(`<a href=`)
)

var headingSizes = map[string]string{
	"1": "24px",
	"2": "22px",
	"3": "20px",
	"4": "18px",
	"5": "16px",
	"6": "15px",
}

// buildBody returns the body_html stored on the mailing.
func buildBody(m Mailing) string {
	if m.BodyIsHTML {
		return normalizeForMail(m.Body)
	}
	return plainToHTML(m.Body, m.Links)
}

// plainToHTML escapes text into paragraphs and lists links after it.
func plainToHTML(body string, links []string) string {
	var b strings.Builder
	for _, para := range strings.Split(strings.TrimSpace(body), "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		b.WriteString("<p>")
		b.WriteString(strings.ReplaceAll(html.EscapeString(para), "\n", "<br>"))
		b.WriteString("</p>")
	}
	if len(links) > 0 {
		anchors := make([]string, 0, len(links))
		for _, u := range links {
			esc := html.EscapeString(u)
			anchors = append(anchors, fmt.Sprintf(`<a href="%s">%s</a>`, esc, esc))
		}
		b.WriteString("<p>")
		b.WriteString(strings.Join(anchors, "<br>"))
		b.WriteString("</p>")
	}
	return b.String()
}

// 邮件客户端会忽略大部分样式表，这里把标题改成带行内字号的段落，链接加上行内颜色。
func normalizeForMail(body string) string {
	body = headingRe.ReplaceAllStringFunc(body, func(block string) string {
		parts := headingRe.FindStringSubmatch(block)
		if len(parts) != 3 {
			return block
		}
		size := headingSizes[parts[1]]
		return fmt.Sprintf(`<p style="font-size:%s;font-weight:700;margin:1em 0 0.6em;">%s</p>`, size, strings.TrimSpace(parts[2]))
	})
	return anchorRe.ReplaceAllString(body, `<a style="color:#1a73e8;" href=`)
}
