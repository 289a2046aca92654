package storage

import (
	"testing"
	"time"

	"github.com/easeaico/storybook/internal/types"
)

func TestStorybookModelRoundTripKeepsCardOrder(t *testing.T) {
	book := types.Storybook{
		SessionID: "s1",
		Config:    types.StoryConfig{ChildName: "민지", PartnerName: "뽀삐", Age: "7", Genre: "우주", Purpose: "사고력"},
		Cards: []types.StoryCard{
			{CharacterName: "핑키", ImageKey: "img_1_20240505103000"},
			{CharacterName: "오류 요정", ImageKey: "err_2_20240505103001"},
		},
		RawText:   "제목\n본문",
		Story:     types.FinalStory{Title: "제목", Body: "본문"},
		Audio:     []byte("mp3"),
		CreatedAt: time.Date(2024, 5, 5, 0, 0, 0, 0, time.UTC),
	}

	model := storybookToModel(book)
	if len(model.Cards) != 2 || model.Cards[1].Position != 1 {
		t.Fatalf("unexpected card models: %#v", model.Cards)
	}
	if model.Title != "제목" || model.Genre != "우주" {
		t.Fatalf("unexpected model: %#v", model)
	}

	got := storybookFromModel(model)
	if got.Config != book.Config || got.Story != book.Story || got.RawText != book.RawText {
		t.Fatalf("unexpected storybook: %#v", got)
	}
	if got.Cards[0] != book.Cards[0] || got.Cards[1] != book.Cards[1] {
		t.Fatalf("unexpected cards: %#v", got.Cards)
	}
}

func TestTableNames(t *testing.T) {
	if (storybookModel{}).TableName() != "storybooks" || (storyCardModel{}).TableName() != "story_cards" {
		t.Fatalf("unexpected table names")
	}
}
