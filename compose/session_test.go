package compose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auto_social_publisher/generator"
)

func TestAttachmentSet(t *testing.T) {
	var a AttachmentSet
	a.Append([]byte("p1"))
	a.Append([]byte("p2"))
	assert.Equal(t, 2, a.Len())

	a.Replace([]byte("c2"))
	assert.Equal(t, [][]byte{[]byte("c2")}, a.Images())

	a.Append([]byte("p3"))
	assert.Equal(t, [][]byte{[]byte("c2"), []byte("p3")}, a.Images())

	imgs := a.Images()
	imgs[0] = nil
	assert.Equal(t, []byte("c2"), a.Images()[0])
}

func TestSession_History(t *testing.T) {
	s := NewSession("f1", "post")
	s.Start("Fête du village", generator.Draft{Body: "post v1"})
	s.Revise("plus court", generator.Draft{Body: "post v2"})

	assert.Equal(t, "post v2", s.Draft.Body)
	require.Len(t, s.History, 2)
	assert.Equal(t, "Fête du village", s.History[0].Instructions)
	assert.Equal(t, "post v1", s.History[0].Draft.Body)
	assert.Equal(t, "plus court", s.History[1].Instructions)
	assert.False(t, s.History[1].CreatedAt.IsZero())
}
