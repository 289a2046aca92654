package story

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/easeaico/storybook/internal/utils"
)

// MaxNarrationRunes is the speech service input limit.
const MaxNarrationRunes = 5000

var (
	ErrEmptyNarration = errors.New("nothing to narrate")
	ErrEmptyAudio     = errors.New("synthesizer returned no audio")
)

// Synthesizer turns plain text into encoded audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// NarrationStage reads the final story aloud.
type NarrationStage struct {
	synth Synthesizer
}

// NewNarrationStage returns a NarrationStage.
func NewNarrationStage(synth Synthesizer) *NarrationStage {
	return &NarrationStage{synth: synth}
}

// Synthesize returns audio bytes, or a nil value when narration is unavailable.
func (s *NarrationStage) Synthesize(ctx context.Context, text string) (out Outcome[[]byte]) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out = Fallback[[]byte](nil, fmt.Errorf("narration panicked: %v", r))
		}
		if out.Degraded() {
			slog.Warn("narration unavailable", "error", out.Cause.Error())
		}
		observe(stageNarration, out.label(), started)
	}()

	audio, err := s.synthesize(ctx, text)
	if err != nil {
		return Fallback[[]byte](nil, err)
	}
	return Ok(audio)
}

func (s *NarrationStage) synthesize(ctx context.Context, text string) ([]byte, error) {
	if s.synth == nil {
		return nil, fmt.Errorf("synthesizer not configured")
	}

	line := utils.TruncateRunes(NarrationText(text), MaxNarrationRunes)
	if line == "" {
		return nil, ErrEmptyNarration
	}

	audio, err := s.synth.Synthesize(ctx, line)
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize speech: %w", err)
	}
	if len(audio) == 0 {
		return nil, ErrEmptyAudio
	}
	return audio, nil
}

// NarrationText strips markdown emphasis and collapses text to one line.
func NarrationText(text string) string {
	return utils.SingleLine(text)
}
