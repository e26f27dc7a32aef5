package generator

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAILLM implements LLMClient using the official openai-go SDK (chat completions).
type OpenAILLM struct {
	Model  string
	client openai.Client
}

func openAIOptions(cfg *LLMSettings) ([]option.RequestOption, error) {
	if cfg == nil {
		return nil, errors.New("llm config is nil")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key missing; provide llm.api_key or OPENAI_API_KEY")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return opts, nil
}

func NewOpenAILLMFromConfig(cfg *LLMSettings) (*OpenAILLM, error) {
	opts, err := openAIOptions(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Model == "" {
		return nil, errors.New("llm model is required")
	}
	return &OpenAILLM{Model: cfg.Model, client: openai.NewClient(opts...)}, nil
}

func (o *OpenAILLM) Complete(ctx context.Context, prompt Prompt) (string, error) {
	msgs := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(prompt.System),
	}
	for _, h := range prompt.History {
		switch h.Role {
		case "assistant":
			msgs = append(msgs, openai.ChatCompletionMessageParamOfAssistant(h.Content))
		default:
			msgs = append(msgs, openai.UserMessage(h.Content))
		}
	}
	msgs = append(msgs, openai.UserMessage(prompt.User))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.Model),
		Messages: msgs,
	}
	if prompt.Temperature > 0 {
		params.Temperature = openai.Float(prompt.Temperature)
	}
	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// OpenAIImages implements ImageClient with the images endpoint, one image per
// request and base64 payloads so nothing is fetched from a temporary URL.
type OpenAIImages struct {
	Model  string
	client openai.Client
}

func NewOpenAIImagesFromConfig(cfg *LLMSettings) (*OpenAIImages, error) {
	opts, err := openAIOptions(cfg)
	if err != nil {
		return nil, err
	}
	model := cfg.ImageModel
	if model == "" {
		model = string(openai.ImageModelDallE3)
	}
	return &OpenAIImages{Model: model, client: openai.NewClient(opts...)}, nil
}

func (o *OpenAIImages) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	params := openai.ImageGenerateParams{
		Prompt: prompt,
		Model:  openai.ImageModel(o.Model),
		N:      openai.Int(1),
		Size:   openai.ImageGenerateParamsSize1024x1024,
	}
	// gpt-image-1 always answers in base64 and rejects response_format.
	if o.Model != string(openai.ImageModelGPTImage1) {
		params.ResponseFormat = openai.ImageGenerateParamsResponseFormatB64JSON
	}
	resp, err := o.client.Images.Generate(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, errors.New("openai: no image returned")
	}
	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return data, nil
}

// OpenAITranscriber implements Transcriber with the audio transcription endpoint.
type OpenAITranscriber struct {
	Model  string
	client openai.Client
	logger *slog.Logger
}

func NewOpenAITranscriberFromConfig(cfg *LLMSettings, logger *slog.Logger) (*OpenAITranscriber, error) {
	opts, err := openAIOptions(cfg)
	if err != nil {
		return nil, err
	}
	model := cfg.TranscribeModel
	if model == "" {
		model = string(openai.AudioModelWhisper1)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAITranscriber{Model: model, client: openai.NewClient(opts...), logger: logger}, nil
}

func (o *OpenAITranscriber) Transcribe(ctx context.Context, audio []byte) string {
	if len(audio) == 0 {
		return ""
	}
	resp, err := o.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(audio), "voice.ogg", "audio/ogg"),
		Model: openai.AudioModel(o.Model),
	})
	if err != nil {
		o.logger.Error("transcription failed", "err", err)
		return ""
	}
	return strings.TrimSpace(resp.Text)
}
