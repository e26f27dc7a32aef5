package generator

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"strings"
)

// MockLLM 一个简单的占位实现，便于本地调试，不调用外部模型。
type MockLLM struct{}

func (m MockLLM) Complete(_ context.Context, prompt Prompt) (string, error) {
	var sb strings.Builder
	if strings.Contains(prompt.System, "Objet:") {
		sb.WriteString("Objet: Des nouvelles de la boutique\n\n")
		sb.WriteString("Bonjour,\n\n")
		sb.WriteString(prompt.User)
		sb.WriteString("\n\n")
		sb.WriteString(LinkPlaceholder)
		sb.WriteString(" découvrir la boutique.\n\nÀ bientôt !")
		return sb.String(), nil
	}
	sb.WriteString("✨ ")
	sb.WriteString(prompt.User)
	return sb.String(), nil
}

// MockImages draws a flat colored square so the whole chain can run offline.
type MockImages struct{}

func (MockImages) GenerateImage(_ context.Context, prompt string) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	c := color.RGBA{R: uint8(len(prompt) % 256), G: 140, B: 200, A: 255}
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MockTranscriber returns the audio bytes as text.
type MockTranscriber struct{}

func (MockTranscriber) Transcribe(_ context.Context, audio []byte) string {
	return strings.TrimSpace(string(audio))
}
