package generator

import (
	"bytes"
	"errors"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
)

var (
	subjectRe = regexp.MustCompile(`(?im)^\s*(?:\*\*)?(?:objet|subject)\s*:\s*(?:\*\*)?\s*(.+?)\s*$`)
	fenceRe   = regexp.MustCompile("(?s)^```[a-zA-Z]*\\n(.*)\\n```$")
)

// PostProcess 校验模型输出并去掉多余的包装。
func PostProcess(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if m := fenceRe.FindStringSubmatch(text); len(m) == 2 {
		text = strings.TrimSpace(m[1])
	}
	text = strings.Trim(text, "\"«» ")
	if text == "" {
		return "", errors.New("model returned empty text")
	}
	return text, nil
}

// ParseEmail splits a model answer into subject and Markdown body. When the
// model forgot the subject line, the first non-empty line is used.
func ParseEmail(raw string) (Draft, error) {
	text, err := PostProcess(raw)
	if err != nil {
		return Draft{}, err
	}

	var subject, body string
	if loc := subjectRe.FindStringSubmatchIndex(text); loc != nil {
		subject = text[loc[2]:loc[3]]
		body = text[:loc[0]] + text[loc[1]:]
	} else {
		first, rest, _ := strings.Cut(text, "\n")
		subject = strings.TrimLeft(first, "# ")
		body = rest
	}
	subject = strings.Trim(strings.TrimSpace(subject), "*\"")
	body = strings.TrimSpace(body)
	if body == "" {
		return Draft{}, errors.New("model returned an email without body")
	}
	return Draft{Subject: subject, Body: body}, nil
}

// RenderHTML converts a Markdown body to HTML for the mailing engine.
func RenderHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
