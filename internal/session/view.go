package session

import (
	"fmt"

	"github.com/easeaico/storybook/internal/types"
	"github.com/easeaico/storybook/internal/utils"
)

// View is what a client renders for a session.
type View struct {
	ID            string            `json:"id"`
	Phase         Phase             `json:"phase"`
	Config        types.StoryConfig `json:"config"`
	PendingImages int               `json:"pending_images"`
	Progress      ProgressView      `json:"progress"`
	Page          int               `json:"page"`
	PageCount     int               `json:"page_count"`
	IsLast        bool              `json:"is_last"`
	Card          *CardView         `json:"card,omitempty"`
	Story         *types.FinalStory `json:"story,omitempty"`
	HasAudio      bool              `json:"has_audio"`
	AudioURL      string            `json:"audio_url,omitempty"`
	Notice        string            `json:"notice,omitempty"`
}

type ProgressView struct {
	Progress
	Fraction float64 `json:"fraction"`
}

type CardView struct {
	types.StoryCard
	Degraded bool   `json:"degraded"`
	ImageURL string `json:"image_url"`
}

// NewView renders state. baseURL prefixes image and audio links.
func NewView(state State, baseURL string) View {
	view := View{
		ID:            state.ID,
		Phase:         state.Phase,
		Config:        state.Config,
		PendingImages: len(state.Pending),
		Progress:      ProgressView{Progress: state.Progress, Fraction: state.Progress.Fraction()},
		Page:          state.Page,
		PageCount:     len(state.Cards),
		Notice:        state.Notice,
	}

	switch state.Phase {
	case PhaseReviewing, PhaseFinalizing:
		if card, ok := state.CurrentCard(); ok {
			view.IsLast = state.IsLastPage()
			view.Card = &CardView{
				StoryCard: card,
				Degraded:  state.Page < len(state.Degraded) && state.Degraded[state.Page],
				ImageURL:  fmt.Sprintf("%s/images/%s", baseURL, card.ImageKey),
			}
		}
	case PhaseComplete:
		story := utils.ParseFinalStory(state.FinalText)
		view.Story = &story
		if len(state.Audio) > 0 {
			view.HasAudio = true
			view.AudioURL = baseURL + "/audio"
		}
	}
	return view
}
