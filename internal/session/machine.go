package session

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/easeaico/storybook/internal/types"
)

// Machine applies session transitions. Every method takes a state and returns
// the next one; on error the returned state equals the input except for Notice.
type Machine struct {
	maxImages int
}

// NewMachine returns a Machine. maxImages <= 0 means no limit.
func NewMachine(maxImages int) *Machine {
	return &Machine{maxImages: maxImages}
}

// UpdateConfig replaces the story config while configuring.
func (m *Machine) UpdateConfig(state State, cfg types.StoryConfig) (State, error) {
	if state.Phase != PhaseConfiguring {
		return state, invalid("update config", state.Phase)
	}
	if err := cfg.Validate(); err != nil {
		return state, err
	}
	next := state.clone()
	next.Config = cfg
	next.Notice = ""
	return next, nil
}

// AddImage queues a photo. Camera captures identical to the previous capture are skipped.
func (m *Machine) AddImage(state State, img types.Image, camera bool) (State, bool, error) {
	if state.Phase != PhaseConfiguring {
		return state, false, invalid("add image", state.Phase)
	}
	if len(img.Data) == 0 {
		return state, false, ErrEmptyImage
	}

	var digest string
	if camera {
		sum := sha256.Sum256(img.Data)
		digest = hex.EncodeToString(sum[:])
		if digest == state.LastCapture {
			return state, false, nil
		}
	}
	if m.maxImages > 0 && len(state.Pending) >= m.maxImages {
		return state, false, fmt.Errorf("%w: limit is %d", ErrTooManyImages, m.maxImages)
	}

	next := state.clone()
	next.Pending = append(next.Pending, img)
	if camera {
		next.LastCapture = digest
	}
	next.Notice = ""
	return next, true, nil
}

// ClearImages drops all queued photos.
func (m *Machine) ClearImages(state State) (State, error) {
	if state.Phase != PhaseConfiguring {
		return state, invalid("clear images", state.Phase)
	}
	next := state.clone()
	next.Pending = nil
	next.LastCapture = ""
	return next, nil
}

// Submit freezes the config and queued photos and starts generation.
func (m *Machine) Submit(state State) (State, error) {
	if state.Phase != PhaseConfiguring {
		return state, invalid("submit", state.Phase)
	}
	if len(state.Pending) == 0 {
		state.Notice = NoticeNoImages
		return state, ErrNoImages
	}

	next := state.clone()
	next.Phase = PhaseGenerating
	next.Run++
	next.Queue = next.Pending
	next.Pending = nil
	next.LastCapture = ""
	next.Cards = make([]types.StoryCard, 0, len(next.Queue))
	next.Degraded = make([]bool, 0, len(next.Queue))
	next.Images = map[string]types.Image{}
	next.Progress = Progress{Total: len(next.Queue)}
	next.Page = 0
	next.Notice = ""
	return next, nil
}

// RecordCard stores the card for the next queued image. After the last image
// the session moves to reviewing at page 0.
func (m *Machine) RecordCard(state State, run int, card types.StoryCard, degraded bool) (State, error) {
	if state.Phase != PhaseGenerating || state.Run != run {
		return state, invalid("record card", state.Phase)
	}
	index := len(state.Cards)
	if index >= len(state.Queue) {
		return state, fmt.Errorf("card %d has no queued image", index)
	}

	next := state.clone()
	next.Cards = append(next.Cards, card)
	next.Degraded = append(next.Degraded, degraded)
	next.Images[card.ImageKey] = state.Queue[index]
	next.Progress.Done = len(next.Cards)

	if next.Progress.Done == next.Progress.Total {
		next.Phase = PhaseReviewing
		next.Queue = nil
		next.Page = 0
	}
	return next, nil
}

// Prev moves one page back. It is a no-op on the first page.
func (m *Machine) Prev(state State) (State, error) {
	if state.Phase != PhaseReviewing {
		return state, invalid("prev", state.Phase)
	}
	if state.Page == 0 {
		return state, nil
	}
	next := state.clone()
	next.Page--
	return next, nil
}

// Next moves one page forward. On the last page it moves to finalizing instead.
func (m *Machine) Next(state State) (State, error) {
	if state.Phase != PhaseReviewing {
		return state, invalid("next", state.Phase)
	}
	next := state.clone()
	if state.IsLastPage() {
		next.Phase = PhaseFinalizing
		return next, nil
	}
	next.Page++
	return next, nil
}

// Complete stores the story text and optional audio and ends finalizing.
func (m *Machine) Complete(state State, text string, audio []byte) (State, error) {
	if state.Phase != PhaseFinalizing {
		return state, invalid("complete", state.Phase)
	}
	next := state.clone()
	next.Phase = PhaseComplete
	next.FinalText = text
	next.Audio = audio
	return next, nil
}

// Reset discards everything except the session ID. The run counter survives
// so a generation loop from before the reset can no longer record cards.
func (m *Machine) Reset(state State) State {
	fresh := New(state.ID)
	fresh.Run = state.Run
	return fresh
}

func invalid(action string, phase Phase) error {
	return fmt.Errorf("%w: cannot %s while %s", ErrInvalidTransition, action, phase)
}
