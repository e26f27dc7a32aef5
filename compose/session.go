package compose

import (
	"time"

	"auto_social_publisher/generator"
)

// AttachmentSet holds the images staged for a post, in order.
type AttachmentSet struct {
	images [][]byte
}

// Replace drops every staged image and keeps img alone.
func (a *AttachmentSet) Replace(img []byte) {
	a.images = [][]byte{img}
}

// Append adds a user-supplied image after the existing ones.
func (a *AttachmentSet) Append(img []byte) {
	a.images = append(a.images, img)
}

func (a *AttachmentSet) Len() int { return len(a.images) }

func (a *AttachmentSet) Images() [][]byte {
	return append([][]byte(nil), a.images...)
}

// Session 持有一次流程的稿件、附件、链接以及修订历史，流程结束即丢弃。
type Session struct {
	ID          string
	Kind        string
	Draft       generator.Draft
	Attachments AttachmentSet
	Links       LinkSet
	History     []generator.Turn
}

func NewSession(id, kind string) *Session {
	return &Session{ID: id, Kind: kind}
}

// Start records the first draft.
func (s *Session) Start(seed string, d generator.Draft) {
	s.Draft = d
	s.appendTurn(seed, d)
}

// Revise replaces the draft wholesale.
func (s *Session) Revise(instructions string, d generator.Draft) {
	s.Draft = d
	s.appendTurn(instructions, d)
}

func (s *Session) appendTurn(instructions string, d generator.Draft) {
	s.History = append(s.History, generator.Turn{
		Instructions: instructions,
		Draft:        d,
		CreatedAt:    time.Now(),
	})
}
