// Package session holds per-user storybook sessions and drives them through
// configuring, generating, reviewing, finalizing and complete.
package session

import (
	"errors"
	"maps"
	"slices"

	"github.com/easeaico/storybook/internal/types"
)

// Phase is the explicit session state tag.
type Phase string

const (
	PhaseConfiguring Phase = "configuring"
	PhaseGenerating  Phase = "generating"
	PhaseReviewing   Phase = "reviewing"
	PhaseFinalizing  Phase = "finalizing"
	PhaseComplete    Phase = "complete"
)

// NoticeNoImages is shown when a submission carries no photos.
const NoticeNoImages = "사진을 올려주세요!"

var (
	ErrNotFound          = errors.New("session not found")
	ErrNoImages          = errors.New("at least one image is required")
	ErrTooManyImages     = errors.New("too many images")
	ErrEmptyImage        = errors.New("image is empty")
	ErrInvalidTransition = errors.New("transition not allowed in current phase")
	ErrImageNotFound     = errors.New("image not found")
	ErrNoAudio           = errors.New("no audio available")
)

// Progress counts processed images during generation.
type Progress struct {
	Done  int `json:"done"`
	Total int `json:"total"`
}

// Fraction returns Done/Total in [0, 1].
func (p Progress) Fraction() float64 {
	if p.Total <= 0 {
		return 0
	}
	return float64(p.Done) / float64(p.Total)
}

// State is one session's data. Treat it as a value: change it only through
// the transition functions in machine.go.
type State struct {
	ID     string
	Phase  Phase
	Config types.StoryConfig

	// Pending holds photos collected while configuring.
	Pending     []types.Image
	LastCapture string

	// Run identifies the current generation run.
	Run      int
	Queue    []types.Image
	Cards    []types.StoryCard
	Degraded []bool
	Images   map[string]types.Image
	Progress Progress
	Page     int

	FinalText string
	Audio     []byte
	Notice    string
}

// New returns a fresh session in the configuring phase.
func New(id string) State {
	return State{
		ID:     id,
		Phase:  PhaseConfiguring,
		Config: types.DefaultStoryConfig(),
		Images: map[string]types.Image{},
	}
}

// clone copies the slices and map so transitions never share backing storage.
func (s State) clone() State {
	s.Pending = slices.Clone(s.Pending)
	s.Queue = slices.Clone(s.Queue)
	s.Cards = slices.Clone(s.Cards)
	s.Degraded = slices.Clone(s.Degraded)
	s.Images = maps.Clone(s.Images)
	if s.Images == nil {
		s.Images = map[string]types.Image{}
	}
	return s
}

// CurrentCard returns the card on the current page.
func (s State) CurrentCard() (types.StoryCard, bool) {
	if s.Page < 0 || s.Page >= len(s.Cards) {
		return types.StoryCard{}, false
	}
	return s.Cards[s.Page], true
}

// IsLastPage reports whether the current page is the final card.
func (s State) IsLastPage() bool {
	return len(s.Cards) > 0 && s.Page == len(s.Cards)-1
}
