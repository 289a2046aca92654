package utils

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/easeaico/storybook/internal/types"
)

// Card field defaults applied when the model omits a field or leaves it blank.
const (
	DefaultCharacterName  = "친구"
	DefaultCharacterType  = "요정"
	DefaultPersonality    = "밝음"
	DefaultMagicPower     = "꿈꾸기"
	DefaultStoryNarration = "새로운 친구를 만났어요."
	DefaultDialogue       = "안녕! 우리 같이 놀자."

	// FallbackTitle is used when the story text carries no separate title line.
	FallbackTitle = "나만의 동화"
)

var ErrMalformedPayload = errors.New("malformed card payload")

var fencedBlockRegex = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)\\s*```")

// PayloadKind tags the shape a card response arrived in.
type PayloadKind int

const (
	PayloadMalformed PayloadKind = iota
	PayloadCard
	PayloadCardList
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadCard:
		return "card"
	case PayloadCardList:
		return "card_list"
	default:
		return "malformed"
	}
}

// CardPayload is the normalized card response.
type CardPayload struct {
	Kind   PayloadKind
	Fields map[string]string
	Err    error
}

// CleanJSONText strips markdown fences and surrounding prose from model output.
func CleanJSONText(raw string) string {
	clean := strings.TrimSpace(raw)
	if match := fencedBlockRegex.FindStringSubmatch(clean); len(match) == 2 {
		clean = strings.TrimSpace(match[1])
	}
	if clean == "" || clean[0] == '{' || clean[0] == '[' {
		return clean
	}

	start := strings.IndexAny(clean, "{[")
	if start < 0 {
		return clean
	}
	closing := "}"
	if clean[start] == '[' {
		closing = "]"
	}
	end := strings.LastIndex(clean, closing)
	if end > start {
		return clean[start : end+1]
	}
	return clean
}

// ParseCardPayload classifies a card response as an object, a list or malformed.
func ParseCardPayload(raw string) CardPayload {
	clean := []byte(CleanJSONText(raw))
	if len(clean) == 0 {
		return malformed(fmt.Errorf("%w: empty response", ErrMalformedPayload))
	}

	switch clean[0] {
	case '{':
		fields, err := decodeFields(clean)
		if err != nil {
			return malformed(err)
		}
		return CardPayload{Kind: PayloadCard, Fields: fields}
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(clean, &items); err != nil {
			return malformed(fmt.Errorf("%w: %v", ErrMalformedPayload, err))
		}
		if len(items) == 0 {
			return CardPayload{Kind: PayloadCardList, Fields: map[string]string{}}
		}
		fields, err := decodeFields(bytes.TrimSpace(items[0]))
		if err != nil {
			return malformed(err)
		}
		return CardPayload{Kind: PayloadCardList, Fields: fields}
	default:
		return malformed(fmt.Errorf("%w: unexpected top-level value", ErrMalformedPayload))
	}
}

// ToCard converts the payload into a fully populated card.
// ImageKey is left empty for the caller to assign.
func (p CardPayload) ToCard() (types.StoryCard, error) {
	if p.Kind == PayloadMalformed {
		if p.Err != nil {
			return types.StoryCard{}, p.Err
		}
		return types.StoryCard{}, ErrMalformedPayload
	}
	return types.StoryCard{
		CharacterName:  field(p.Fields, "character_name", DefaultCharacterName),
		CharacterType:  field(p.Fields, "character_type", DefaultCharacterType),
		Personality:    field(p.Fields, "personality", DefaultPersonality),
		MagicPower:     field(p.Fields, "magic_power", DefaultMagicPower),
		StoryNarration: field(p.Fields, "story_narration", DefaultStoryNarration),
		Dialogue:       field(p.Fields, "dialogue", DefaultDialogue),
	}, nil
}

// ParseFinalStory splits assembled story text into title and body.
// It accepts {"title","story"}, a list wrapping that object, or plain text.
func ParseFinalStory(raw string) types.FinalStory {
	text := strings.TrimSpace(raw)
	if text == "" {
		return types.FinalStory{Title: FallbackTitle}
	}

	if story, ok := parseStoryJSON(CleanJSONText(text)); ok {
		return story
	}

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) < 2 {
		return types.FinalStory{Title: FallbackTitle, Body: text}
	}

	title := strings.TrimSpace(strings.TrimLeft(lines[0], "#"))
	title = strings.TrimSpace(strings.Trim(title, "*"))
	if title == "" {
		title = FallbackTitle
	}
	return types.FinalStory{Title: title, Body: strings.Join(lines[1:], "\n")}
}

type storyJSON struct {
	Title string `json:"title"`
	Story string `json:"story"`
}

func parseStoryJSON(clean string) (types.FinalStory, bool) {
	if clean == "" {
		return types.FinalStory{}, false
	}

	var obj storyJSON
	switch clean[0] {
	case '{':
		if err := json.Unmarshal([]byte(clean), &obj); err != nil {
			return types.FinalStory{}, false
		}
	case '[':
		var list []storyJSON
		if err := json.Unmarshal([]byte(clean), &list); err != nil || len(list) == 0 {
			return types.FinalStory{}, false
		}
		obj = list[0]
	default:
		return types.FinalStory{}, false
	}

	obj.Title = strings.TrimSpace(obj.Title)
	obj.Story = strings.TrimSpace(obj.Story)
	if obj.Story == "" {
		return types.FinalStory{}, false
	}
	if obj.Title == "" {
		obj.Title = FallbackTitle
	}
	return types.FinalStory{Title: obj.Title, Body: obj.Story}, true
}

func decodeFields(data []byte) (map[string]string, error) {
	if len(data) == 0 || data[0] != '{' {
		return nil, fmt.Errorf("%w: card is not an object", ErrMalformedPayload)
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	fields := make(map[string]string, len(obj))
	for key, value := range obj {
		switch v := value.(type) {
		case string:
			fields[key] = strings.TrimSpace(v)
		case float64, bool:
			fields[key] = fmt.Sprint(v)
		}
	}
	return fields, nil
}

func field(fields map[string]string, key, fallback string) string {
	if value := fields[key]; value != "" {
		return value
	}
	return fallback
}

func malformed(err error) CardPayload {
	return CardPayload{Kind: PayloadMalformed, Err: err}
}
