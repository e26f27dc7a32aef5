package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// CandidateCount is how many illustrations are offered for a single pick.
const CandidateCount = 2

// Error is a generation failure: the model call or its post-processing failed.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("generator %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsGenerationError reports whether err is a generation failure.
func IsGenerationError(err error) bool {
	var ge *Error
	return errors.As(err, &ge)
}

// Generator 负责根据种子文本和反馈生成或修订稿件，并生成配图。
type Generator struct {
	llm    LLMClient
	images ImageClient
	logger *slog.Logger
}

func NewGenerator(llm LLMClient, images ImageClient, logger *slog.Logger) (*Generator, error) {
	if llm == nil {
		return nil, errors.New("llm client is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{llm: llm, images: images, logger: logger}, nil
}

// Draft writes the first version of a post from raw notes.
func (g *Generator) Draft(ctx context.Context, seed string) (Draft, error) {
	raw, err := g.llm.Complete(ctx, BuildPostPrompt(seed))
	if err != nil {
		return Draft{}, &Error{Op: "draft", Err: err}
	}
	body, err := PostProcess(raw)
	if err != nil {
		return Draft{}, &Error{Op: "draft", Err: err}
	}
	return Draft{Body: body}, nil
}

// Revise rewrites the draft body wholesale following the instructions. The
// subject of a mailing is kept.
func (g *Generator) Revise(ctx context.Context, draft Draft, instructions string, history []Turn) (Draft, error) {
	raw, err := g.llm.Complete(ctx, BuildRevisionPrompt(draft.Body, instructions, history))
	if err != nil {
		return Draft{}, &Error{Op: "revise", Err: err}
	}
	body, err := PostProcess(raw)
	if err != nil {
		return Draft{}, &Error{Op: "revise", Err: err}
	}
	return Draft{Subject: draft.Subject, Body: body}, nil
}

// DraftEmail writes a marketing email (subject and Markdown body) from notes.
func (g *Generator) DraftEmail(ctx context.Context, seed string) (Draft, error) {
	raw, err := g.llm.Complete(ctx, BuildEmailPrompt(seed))
	if err != nil {
		return Draft{}, &Error{Op: "draft_email", Err: err}
	}
	d, err := ParseEmail(raw)
	if err != nil {
		return Draft{}, &Error{Op: "draft_email", Err: err}
	}
	return d, nil
}

// Illustrate requests CandidateCount images in parallel. Failed requests are
// logged and dropped, so the result may be shorter than asked, or empty.
func (g *Generator) Illustrate(ctx context.Context, draft Draft, style string) [][]byte {
	if g.images == nil {
		g.logger.Warn("illustration requested without image client")
		return nil
	}
	prompt := BuildIllustrationPrompt(draft.Body, style)

	var (
		mu      sync.Mutex
		results = make([][]byte, CandidateCount)
		g2      errgroup.Group
	)
	for i := 0; i < CandidateCount; i++ {
		g2.Go(func() error {
			img, err := g.images.GenerateImage(ctx, prompt)
			if err != nil {
				g.logger.Error("illustration failed", "candidate", i+1, "style", style, "err", err)
				return nil
			}
			mu.Lock()
			results[i] = img
			mu.Unlock()
			return nil
		})
	}
	_ = g2.Wait()

	out := make([][]byte, 0, CandidateCount)
	for _, img := range results {
		if len(img) > 0 {
			out = append(out, img)
		}
	}
	return out
}
