package story

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/easeaico/storybook/internal/prompt"
	"github.com/easeaico/storybook/internal/types"
)

// AssemblyFailureText replaces the story when assembly fails.
const AssemblyFailureText = "이야기 생성에 실패했어요"

var ErrEmptyStory = errors.New("model returned empty story")

// TextWriter completes a single text prompt.
type TextWriter interface {
	Write(ctx context.Context, prompt string) (string, error)
}

// AssemblyStage writes the final story from all cards.
type AssemblyStage struct {
	writer  TextWriter
	limiter *rate.Limiter
}

// NewAssemblyStage returns an AssemblyStage. A nil limiter means no rate limit.
func NewAssemblyStage(writer TextWriter, limiter *rate.Limiter) *AssemblyStage {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}
	return &AssemblyStage{writer: writer, limiter: limiter}
}

// Assemble returns the raw story text. Title/body parsing is left to the viewer.
func (s *AssemblyStage) Assemble(ctx context.Context, cards []types.StoryCard, cfg types.StoryConfig) (out Outcome[string]) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out = Fallback(AssemblyFailureText, fmt.Errorf("story assembly panicked: %v", r))
		}
		if out.Degraded() {
			slog.Error("story assembly failed", "cards", len(cards), "error", out.Cause.Error())
		}
		observe(stageAssembly, out.label(), started)
	}()

	text, err := s.assemble(ctx, cards, cfg)
	if err != nil {
		return Fallback(AssemblyFailureText, err)
	}
	return Ok(text)
}

func (s *AssemblyStage) assemble(ctx context.Context, cards []types.StoryCard, cfg types.StoryConfig) (string, error) {
	if s.writer == nil {
		return "", fmt.Errorf("story writer not configured")
	}

	instruction, err := prompt.BuildStoryInstruction(cards, cfg)
	if err != nil {
		return "", err
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	text, err := s.writer.Write(ctx, instruction)
	if err != nil {
		return "", fmt.Errorf("failed to write story: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyStory
	}
	return text, nil
}
