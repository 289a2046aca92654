package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/easeaico/storybook/internal/story"
	"github.com/easeaico/storybook/internal/types"
	"github.com/easeaico/storybook/internal/utils"
)

// CardGenerator produces one card per photo.
type CardGenerator interface {
	Generate(ctx context.Context, image []byte, cfg types.StoryConfig) story.Outcome[types.StoryCard]
}

// Assembler writes the final story text from all cards.
type Assembler interface {
	Assemble(ctx context.Context, cards []types.StoryCard, cfg types.StoryConfig) story.Outcome[string]
}

// Narrator reads the final story aloud.
type Narrator interface {
	Synthesize(ctx context.Context, text string) story.Outcome[[]byte]
}

// Archiver persists completed storybooks.
type Archiver interface {
	Save(ctx context.Context, book types.Storybook) error
}

// Options configures a Service.
type Options struct {
	// CredentialErr blocks every submission when set.
	CredentialErr error
	MaxImages     int
	Archiver      Archiver
}

// Service runs the storybook pipeline for each session.
type Service struct {
	store     *Store
	machine   *Machine
	cards     CardGenerator
	assembler Assembler
	narrator  Narrator
	archiver  Archiver
	credErr   error
	finalize  singleflight.Group
}

// NewService returns a new session service.
func NewService(store *Store, cards CardGenerator, assembler Assembler, narrator Narrator, opts Options) *Service {
	return &Service{
		store:     store,
		machine:   NewMachine(opts.MaxImages),
		cards:     cards,
		assembler: assembler,
		narrator:  narrator,
		archiver:  opts.Archiver,
		credErr:   opts.CredentialErr,
	}
}

// Create starts a new session.
func (s *Service) Create() State {
	state := s.store.Create()
	slog.Info("session created", "session_id", state.ID)
	return state
}

// Get returns the current session state.
func (s *Service) Get(id string) (State, error) {
	return s.store.Get(id)
}

// UpdateConfig replaces the story config.
func (s *Service) UpdateConfig(id string, cfg types.StoryConfig) (State, error) {
	return s.store.Update(id, func(state State) (State, error) {
		return s.machine.UpdateConfig(state, cfg)
	})
}

// AddImages queues photos and returns how many were accepted. The batch is
// all-or-nothing: if any photo is rejected the session is left unchanged.
func (s *Service) AddImages(id string, images []types.Image, camera bool) (State, int, error) {
	added := 0
	state, err := s.store.Update(id, func(current State) (State, error) {
		next := current
		for _, img := range images {
			updated, ok, err := s.machine.AddImage(next, img, camera)
			if err != nil {
				added = 0
				return current, err
			}
			if ok {
				added++
			}
			next = updated
		}
		return next, nil
	})
	return state, added, err
}

// ClearImages drops all queued photos.
func (s *Service) ClearImages(id string) (State, error) {
	return s.store.Update(id, s.machine.ClearImages)
}

// Submit generates one card per queued photo, in order, and returns the
// session in the reviewing phase. Card failures never abort the batch.
func (s *Service) Submit(ctx context.Context, id string) (State, error) {
	if s.credErr != nil {
		return State{}, s.credErr
	}

	state, err := s.store.Update(id, s.machine.Submit)
	if err != nil {
		return state, err
	}

	// Stage calls outlive the triggering request.
	ctx = context.WithoutCancel(ctx)
	run, cfg, queue := state.Run, state.Config, state.Queue
	slog.Info("generation started", "session_id", id, "images", len(queue))

	for i, img := range queue {
		out := s.cards.Generate(ctx, img.Data, cfg)
		state, err = s.store.Update(id, func(state State) (State, error) {
			return s.machine.RecordCard(state, run, out.Value, out.Degraded())
		})
		if err != nil {
			slog.Warn("generation aborted", "session_id", id, "card", i, "error", err.Error())
			return state, err
		}
		slog.Info("card generated", "session_id", id, "progress", fmt.Sprintf("%d/%d", i+1, len(queue)), "degraded", out.Degraded())
	}
	return state, nil
}

// Prev moves one page back.
func (s *Service) Prev(id string) (State, error) {
	return s.store.Update(id, s.machine.Prev)
}

// Next moves one page forward, or to finalizing from the last page.
func (s *Service) Next(id string) (State, error) {
	return s.store.Update(id, s.machine.Next)
}

// Finalize assembles and narrates the story once per generation run. Calling
// it again after completion returns the stored result without any external call.
func (s *Service) Finalize(ctx context.Context, id string) (State, error) {
	state, err := s.store.Get(id)
	if err != nil {
		return State{}, err
	}
	run := state.Run
	key := fmt.Sprintf("%s/%d", id, run)
	value, err, _ := s.finalize.Do(key, func() (any, error) {
		return s.runFinalize(context.WithoutCancel(ctx), id, run)
	})
	state, _ = value.(State)
	return state, err
}

func (s *Service) runFinalize(ctx context.Context, id string, run int) (State, error) {
	state, err := s.store.Get(id)
	if err != nil {
		return State{}, err
	}
	if state.Run != run {
		return state, invalid("finalize", state.Phase)
	}
	switch state.Phase {
	case PhaseComplete:
		return state, nil
	case PhaseFinalizing:
	default:
		return state, invalid("finalize", state.Phase)
	}

	text := s.assembler.Assemble(ctx, state.Cards, state.Config)
	audio := s.narrator.Synthesize(ctx, text.Value)

	state, err = s.store.Update(id, func(current State) (State, error) {
		if current.Run != run {
			return current, invalid("complete", current.Phase)
		}
		return s.machine.Complete(current, text.Value, audio.Value)
	})
	if err != nil {
		return state, err
	}
	slog.Info("storybook complete", "session_id", id, "story_degraded", text.Degraded(), "has_audio", len(state.Audio) > 0)

	s.archive(ctx, state)
	return state, nil
}

// Reset discards all session data and returns to configuring.
func (s *Service) Reset(id string) (State, error) {
	return s.store.Update(id, func(state State) (State, error) {
		return s.machine.Reset(state), nil
	})
}

// Close discards the session entirely.
func (s *Service) Close(id string) error {
	if _, err := s.store.Get(id); err != nil {
		return err
	}
	s.store.Delete(id)
	slog.Info("session closed", "session_id", id)
	return nil
}

// ActiveSessions returns the number of live sessions.
func (s *Service) ActiveSessions() int {
	return s.store.Len()
}

// Image returns a stored photo by key.
func (s *Service) Image(id, key string) (types.Image, error) {
	state, err := s.store.Get(id)
	if err != nil {
		return types.Image{}, err
	}
	img, ok := state.Images[key]
	if !ok {
		return types.Image{}, ErrImageNotFound
	}
	return img, nil
}

// Audio returns the narration for a completed session.
func (s *Service) Audio(id string) ([]byte, error) {
	state, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	if state.Phase != PhaseComplete || len(state.Audio) == 0 {
		return nil, ErrNoAudio
	}
	return state.Audio, nil
}

func (s *Service) archive(ctx context.Context, state State) {
	if s.archiver == nil {
		return
	}
	book := types.Storybook{
		SessionID: state.ID,
		Config:    state.Config,
		Cards:     state.Cards,
		RawText:   state.FinalText,
		Story:     utils.ParseFinalStory(state.FinalText),
		Audio:     state.Audio,
		CreatedAt: time.Now(),
	}
	if err := s.archiver.Save(ctx, book); err != nil {
		slog.Error("failed to archive storybook", "session_id", state.ID, "error", err.Error())
	}
}
