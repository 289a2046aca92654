package types

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	// DefaultAge is used whenever the configured age is not a number in [MinAge, MaxAge].
	DefaultAge = 5
	MinAge     = 1
	MaxAge     = 10

	// ChildPlaceholder replaces an empty child name in prompts.
	ChildPlaceholder = "아이"
	// PartnerPlaceholder replaces an empty partner name in prompts.
	PartnerPlaceholder = "친구"

	DefaultGenre   = "전래동화"
	DefaultPurpose = "안전"
)

// Genres lists the selectable story genres in display order.
var Genres = []string{
	"전래동화", "판타지", "히어로", "요정", "일상", "자동차",
	"공주/왕자", "추리", "우주", "로봇", "동물", "공룡",
}

// Purposes lists the selectable educational purposes in display order.
var Purposes = []string{
	"안전", "예절&규칙", "문화", "어휘력", "세계&다양성", "사고력", "기초과학", "자신감",
}

var (
	ErrUnknownGenre   = errors.New("unknown genre")
	ErrUnknownPurpose = errors.New("unknown purpose")
)

// StoryConfig holds the user-supplied story parameters.
type StoryConfig struct {
	ChildName   string `json:"child_name"`
	PartnerName string `json:"partner_name"`
	Age         string `json:"age"`
	Genre       string `json:"genre" validate:"oneof=전래동화 판타지 히어로 요정 일상 자동차 공주/왕자 추리 우주 로봇 동물 공룡"`
	Purpose     string `json:"purpose" validate:"oneof=안전 예절&규칙 문화 어휘력 세계&다양성 사고력 기초과학 자신감"`
}

var configValidator = validator.New()

// DefaultStoryConfig returns the config a fresh session starts with.
func DefaultStoryConfig() StoryConfig {
	return StoryConfig{
		Age:     strconv.Itoa(DefaultAge),
		Genre:   DefaultGenre,
		Purpose: DefaultPurpose,
	}
}

// Validate checks that genre and purpose are known literals.
func (c StoryConfig) Validate() error {
	err := configValidator.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("failed to validate config: %w", err)
	}
	for _, fe := range fieldErrs {
		switch fe.Field() {
		case "Genre":
			return fmt.Errorf("%w: %q", ErrUnknownGenre, c.Genre)
		case "Purpose":
			return fmt.Errorf("%w: %q", ErrUnknownPurpose, c.Purpose)
		}
	}
	return fmt.Errorf("invalid config: %w", err)
}

// ClampedAge returns the age used in prompts.
func (c StoryConfig) ClampedAge() int {
	return ClampAge(c.Age)
}

// DisplayChildName returns the child name or its placeholder.
func (c StoryConfig) DisplayChildName() string {
	if name := strings.TrimSpace(c.ChildName); name != "" {
		return name
	}
	return ChildPlaceholder
}

// DisplayPartnerName returns the partner name or its placeholder.
func (c StoryConfig) DisplayPartnerName() string {
	if name := strings.TrimSpace(c.PartnerName); name != "" {
		return name
	}
	return PartnerPlaceholder
}

// ClampAge parses a digit-only age and falls back to DefaultAge outside 1-10.
func ClampAge(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultAge
	}
	for _, r := range raw {
		if r < '0' || r > '9' {
			return DefaultAge
		}
	}
	age, err := strconv.Atoi(raw)
	if err != nil || age < MinAge || age > MaxAge {
		return DefaultAge
	}
	return age
}

// StoryCard is the per-photo character page.
type StoryCard struct {
	CharacterName  string `json:"character_name"`
	CharacterType  string `json:"character_type"`
	Personality    string `json:"personality"`
	MagicPower     string `json:"magic_power"`
	StoryNarration string `json:"story_narration"`
	Dialogue       string `json:"dialogue"`
	ImageKey       string `json:"image_key"`
}

// Image is raw image data with its MIME type.
type Image struct {
	Data     []byte `json:"-"`
	MIMEType string `json:"mime_type"`
}

// FinalStory is the parsed result of story assembly.
type FinalStory struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Storybook is a completed session, as archived.
type Storybook struct {
	ID        int         `json:"id"`
	SessionID string      `json:"session_id"`
	Config    StoryConfig `json:"config"`
	Cards     []StoryCard `json:"cards"`
	RawText   string      `json:"raw_text"`
	Story     FinalStory  `json:"story"`
	Audio     []byte      `json:"-"`
	CreatedAt time.Time   `json:"created_at"`
}
