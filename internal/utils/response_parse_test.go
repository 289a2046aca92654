package utils

import (
	"errors"
	"strings"
	"testing"
)

const fullCard = `{"character_name":"핑키","character_type":"꽃","personality":"수줍음","magic_power":"꽃가루","dialogue":"안녕!","story_narration":"그때였어요!"}`

func TestParseCardPayloadObject(t *testing.T) {
	payload := ParseCardPayload(fullCard)
	if payload.Kind != PayloadCard {
		t.Fatalf("expected card payload, got %s", payload.Kind)
	}
	card, err := payload.ToCard()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if card.CharacterName != "핑키" || card.MagicPower != "꽃가루" || card.StoryNarration != "그때였어요!" {
		t.Fatalf("unexpected card: %#v", card)
	}
}

func TestParseCardPayloadListMatchesObject(t *testing.T) {
	fromObject, err := ParseCardPayload(fullCard).ToCard()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	payload := ParseCardPayload("[" + fullCard + "]")
	if payload.Kind != PayloadCardList {
		t.Fatalf("expected card list payload, got %s", payload.Kind)
	}
	fromList, err := payload.ToCard()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if fromList != fromObject {
		t.Fatalf("expected identical cards, got %#v vs %#v", fromList, fromObject)
	}
}

func TestParseCardPayloadEmptyListYieldsDefaults(t *testing.T) {
	card, err := ParseCardPayload("[]").ToCard()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if card.CharacterName != DefaultCharacterName ||
		card.CharacterType != DefaultCharacterType ||
		card.Personality != DefaultPersonality ||
		card.MagicPower != DefaultMagicPower ||
		card.StoryNarration != DefaultStoryNarration ||
		card.Dialogue != DefaultDialogue {
		t.Fatalf("expected all-defaults card, got %#v", card)
	}
}

func TestParseCardPayloadPartialFields(t *testing.T) {
	card, err := ParseCardPayload(`{"character_name":"붕붕이","dialogue":"  "}`).ToCard()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if card.CharacterName != "붕붕이" {
		t.Fatalf("unexpected name: %s", card.CharacterName)
	}
	if card.Dialogue != DefaultDialogue || card.Personality != DefaultPersonality {
		t.Fatalf("expected defaults for missing fields, got %#v", card)
	}
}

func TestParseCardPayloadFenced(t *testing.T) {
	payload := ParseCardPayload("```json\n" + fullCard + "\n```")
	if payload.Kind != PayloadCard {
		t.Fatalf("expected card payload, got %s", payload.Kind)
	}
}

func TestParseCardPayloadMalformed(t *testing.T) {
	for _, raw := range []string{"", "not json", `"just a string"`, `{"character_name":`, `[1, 2]`, `[null]`} {
		payload := ParseCardPayload(raw)
		if payload.Kind != PayloadMalformed {
			t.Fatalf("expected malformed for %q, got %s", raw, payload.Kind)
		}
		if _, err := payload.ToCard(); !errors.Is(err, ErrMalformedPayload) {
			t.Fatalf("expected ErrMalformedPayload for %q, got %v", raw, err)
		}
	}
}

func TestCleanJSONTextWithWrapper(t *testing.T) {
	got := CleanJSONText(`여기 있어요: {"title":"T"} 끝`)
	if got != `{"title":"T"}` {
		t.Fatalf("unexpected clean text: %s", got)
	}
}

func TestParseFinalStoryObject(t *testing.T) {
	got := ParseFinalStory(`{"title":"T","story":"B"}`)
	if got.Title != "T" || got.Body != "B" {
		t.Fatalf("unexpected story: %#v", got)
	}
}

func TestParseFinalStoryArray(t *testing.T) {
	got := ParseFinalStory(`[{"title":"T","story":"B"}]`)
	if got.Title != "T" || got.Body != "B" {
		t.Fatalf("unexpected story: %#v", got)
	}
}

func TestParseFinalStoryPlainText(t *testing.T) {
	got := ParseFinalStory("# 용감한 민지\n\n옛날 옛적에...\n민지는 웃었어요.")
	if got.Title != "용감한 민지" {
		t.Fatalf("unexpected title: %s", got.Title)
	}
	if got.Body != "옛날 옛적에...\n민지는 웃었어요." {
		t.Fatalf("unexpected body: %q", got.Body)
	}
}

func TestParseFinalStorySingleLine(t *testing.T) {
	got := ParseFinalStory("이야기 생성에 실패했어요")
	if got.Title != FallbackTitle || got.Body != "이야기 생성에 실패했어요" {
		t.Fatalf("unexpected story: %#v", got)
	}
}

func TestParseFinalStoryUnknownJSONFallsBackToText(t *testing.T) {
	got := ParseFinalStory(`{"name":"x"}`)
	if got.Title != FallbackTitle || got.Body != `{"name":"x"}` {
		t.Fatalf("unexpected story: %#v", got)
	}
}

func TestSingleLineAndTruncate(t *testing.T) {
	got := SingleLine("# 제목\n\n**굵게**  그리고\t끝")
	if got != "제목 굵게 그리고 끝" {
		t.Fatalf("unexpected single line: %q", got)
	}
	long := strings.Repeat("가", 5001)
	if n := len([]rune(TruncateRunes(long, 5000))); n != 5000 {
		t.Fatalf("expected 5000 runes, got %d", n)
	}
	if TruncateRunes("짧음", 5000) != "짧음" {
		t.Fatalf("expected short text unchanged")
	}
}
