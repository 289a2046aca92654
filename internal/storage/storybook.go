package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/easeaico/storybook/internal/types"
)

// ErrStorybookNotFound means no archived storybook matches the lookup.
var ErrStorybookNotFound = errors.New("storybook not found")

type storybookModel struct {
	ID          int              `gorm:"primaryKey"`
	SessionID   string           `gorm:"size:64;index"`
	ChildName   string           `gorm:"size:255"`
	PartnerName string           `gorm:"size:255"`
	Age         string           `gorm:"size:8"`
	Genre       string           `gorm:"size:64"`
	Purpose     string           `gorm:"size:64"`
	Title       string           `gorm:"size:255"`
	Body        string           `gorm:"type:text"`
	RawText     string           `gorm:"type:text"`
	Audio       []byte           `gorm:"type:bytea"`
	Cards       []storyCardModel `gorm:"foreignKey:StorybookID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time
}

func (storybookModel) TableName() string {
	return "storybooks"
}

type storyCardModel struct {
	ID             int `gorm:"primaryKey"`
	StorybookID    int `gorm:"index"`
	Position       int
	CharacterName  string `gorm:"size:255"`
	CharacterType  string `gorm:"size:255"`
	Personality    string `gorm:"size:255"`
	MagicPower     string `gorm:"size:255"`
	StoryNarration string `gorm:"type:text"`
	Dialogue       string `gorm:"type:text"`
	ImageKey       string `gorm:"size:128"`
}

func (storyCardModel) TableName() string {
	return "story_cards"
}

// StorybookRepo accesses archived storybooks.
type StorybookRepo struct {
	db *gorm.DB
}

// NewStorybookRepo returns a StorybookRepo.
func NewStorybookRepo(db *gorm.DB) *StorybookRepo {
	return &StorybookRepo{db: db}
}

// Save inserts the storybook and its cards.
func (r *StorybookRepo) Save(ctx context.Context, book types.Storybook) error {
	record := storybookToModel(book)
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to insert storybook: %w", err)
	}
	return nil
}

// GetBySession returns the newest storybook for a session.
func (r *StorybookRepo) GetBySession(ctx context.Context, sessionID string) (*types.Storybook, error) {
	var record storybookModel
	err := r.db.WithContext(ctx).
		Preload("Cards", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrStorybookNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get storybook by session: %w", err)
	}
	book := storybookFromModel(record)
	return &book, nil
}

// ListRecent returns the newest storybooks without audio.
func (r *StorybookRepo) ListRecent(ctx context.Context, limit int) ([]types.Storybook, error) {
	if limit <= 0 {
		limit = 20
	}
	var records []storybookModel
	err := r.db.WithContext(ctx).
		Omit("audio").
		Preload("Cards", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list storybooks: %w", err)
	}

	books := make([]types.Storybook, 0, len(records))
	for _, record := range records {
		books = append(books, storybookFromModel(record))
	}
	return books, nil
}

func storybookToModel(book types.Storybook) storybookModel {
	cards := make([]storyCardModel, 0, len(book.Cards))
	for i, card := range book.Cards {
		cards = append(cards, storyCardModel{
			Position:       i,
			CharacterName:  card.CharacterName,
			CharacterType:  card.CharacterType,
			Personality:    card.Personality,
			MagicPower:     card.MagicPower,
			StoryNarration: card.StoryNarration,
			Dialogue:       card.Dialogue,
			ImageKey:       card.ImageKey,
		})
	}
	return storybookModel{
		SessionID:   book.SessionID,
		ChildName:   book.Config.ChildName,
		PartnerName: book.Config.PartnerName,
		Age:         book.Config.Age,
		Genre:       book.Config.Genre,
		Purpose:     book.Config.Purpose,
		Title:       book.Story.Title,
		Body:        book.Story.Body,
		RawText:     book.RawText,
		Audio:       book.Audio,
		Cards:       cards,
		CreatedAt:   book.CreatedAt,
	}
}

func storybookFromModel(model storybookModel) types.Storybook {
	cards := make([]types.StoryCard, 0, len(model.Cards))
	for _, card := range model.Cards {
		cards = append(cards, types.StoryCard{
			CharacterName:  card.CharacterName,
			CharacterType:  card.CharacterType,
			Personality:    card.Personality,
			MagicPower:     card.MagicPower,
			StoryNarration: card.StoryNarration,
			Dialogue:       card.Dialogue,
			ImageKey:       card.ImageKey,
		})
	}
	return types.Storybook{
		ID:        model.ID,
		SessionID: model.SessionID,
		Config: types.StoryConfig{
			ChildName:   model.ChildName,
			PartnerName: model.PartnerName,
			Age:         model.Age,
			Genre:       model.Genre,
			Purpose:     model.Purpose,
		},
		Cards:     cards,
		RawText:   model.RawText,
		Story:     types.FinalStory{Title: model.Title, Body: model.Body},
		Audio:     model.Audio,
		CreatedAt: model.CreatedAt,
	}
}
