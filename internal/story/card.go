package story

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/easeaico/storybook/internal/prompt"
	"github.com/easeaico/storybook/internal/types"
	"github.com/easeaico/storybook/internal/utils"
)

const (
	imageKeyPrefix    = "img"
	fallbackKeyPrefix = "err"
	keyTimeLayout     = "20060102150405"
)

// CardModel describes one image against an instruction and returns raw JSON text.
type CardModel interface {
	DescribeImage(ctx context.Context, instruction string, image []byte, mimeType string) (string, error)
}

// CardStage turns one photo into one StoryCard.
type CardStage struct {
	model   CardModel
	limiter *rate.Limiter
	now     func() time.Time
	seq     atomic.Uint64
}

// NewCardStage returns a CardStage. A nil limiter means no rate limit.
func NewCardStage(model CardModel, limiter *rate.Limiter) *CardStage {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}
	return &CardStage{
		model:   model,
		limiter: limiter,
		now:     time.Now,
	}
}

// Generate builds a card for image. It always returns a card; failures yield the error card.
func (s *CardStage) Generate(ctx context.Context, image []byte, cfg types.StoryConfig) (out Outcome[types.StoryCard]) {
	started := time.Now()
	seq := s.seq.Add(1)
	defer func() {
		if r := recover(); r != nil {
			out = Fallback(s.errorCard(seq), fmt.Errorf("card generation panicked: %v", r))
		}
		if out.Degraded() {
			slog.Error("card generation failed, using error card", "seq", seq, "error", out.Cause.Error())
		}
		observe(stageCard, out.label(), started)
	}()

	card, err := s.generate(ctx, image, cfg)
	if err != nil {
		return Fallback(s.errorCard(seq), err)
	}
	card.ImageKey = s.imageKey(imageKeyPrefix, seq)
	return Ok(card)
}

func (s *CardStage) generate(ctx context.Context, image []byte, cfg types.StoryConfig) (types.StoryCard, error) {
	if s.model == nil {
		return types.StoryCard{}, fmt.Errorf("card model not configured")
	}

	req, err := prompt.BuildCardRequest(cfg, image)
	if err != nil {
		return types.StoryCard{}, err
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return types.StoryCard{}, fmt.Errorf("rate limiter: %w", err)
	}

	text, err := s.model.DescribeImage(ctx, req.Instruction, req.Image.Data, req.Image.MIMEType)
	if err != nil {
		return types.StoryCard{}, fmt.Errorf("failed to describe image: %w", err)
	}

	payload := utils.ParseCardPayload(text)
	card, err := payload.ToCard()
	if err != nil {
		return types.StoryCard{}, err
	}
	if payload.Kind == utils.PayloadCardList {
		slog.Warn("card response arrived as a list, using first element")
	}
	return card, nil
}

func (s *CardStage) errorCard(seq uint64) types.StoryCard {
	return types.StoryCard{
		CharacterName:  "오류 요정",
		CharacterType:  utils.DefaultCharacterType,
		Personality:    utils.DefaultPersonality,
		MagicPower:     utils.DefaultMagicPower,
		StoryNarration: "잠시 연결이 불안정했어요.",
		Dialogue:       "다시 시도해볼까?",
		ImageKey:       s.imageKey(fallbackKeyPrefix, seq),
	}
}

func (s *CardStage) imageKey(prefix string, seq uint64) string {
	return fmt.Sprintf("%s_%d_%s", prefix, seq, s.now().Format(keyTimeLayout))
}
