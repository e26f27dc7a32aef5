package generator

import "time"

// Draft is the text under construction. Posts only use Body; mailings carry
// a Subject and a Markdown Body rendered to HTML at delivery time.
type Draft struct {
	Subject string
	Body    string
}

// Empty reports whether the draft has no usable content.
func (d Draft) Empty() bool {
	return d.Body == ""
}

// Turn 记录一次评论驱动的修订。
type Turn struct {
	Instructions string
	Draft        Draft
	CreatedAt    time.Time
}
