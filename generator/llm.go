package generator

import "context"

// LLMClient 抽象大模型客户端，便于替换/Mock。
type LLMClient interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// ImageClient produces images for a prompt. Implementations return raw
// encoded bytes (PNG) and never touch the disk.
type ImageClient interface {
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
}

// Transcriber turns a voice note into text. It returns "" on failure.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) string
}

// LLMSettings 提供给具体实现的基础配置。
type LLMSettings struct {
	Provider        string
	Model           string
	ImageModel      string
	TranscribeModel string
	APIKey          string
	BaseURL         string
}
