package models

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"google.golang.org/api/option"
	texttospeech "google.golang.org/api/texttospeech/v1"
)

const (
	defaultLanguageCode = "ko-KR"
	audioEncodingMP3    = "MP3"
)

// Narrator 通过 Cloud Text-to-Speech 合成韩语语音。
type Narrator struct {
	service      *texttospeech.Service
	languageCode string
	voice        string
	speakingRate float64
}

func NewNarrator(ctx context.Context, apiKey, languageCode, voice string, speakingRate float64) (*Narrator, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("API key is required")
	}

	service, err := texttospeech.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create text-to-speech service: %w", err)
	}

	languageCode = strings.TrimSpace(languageCode)
	if languageCode == "" {
		languageCode = defaultLanguageCode
	}
	return &Narrator{
		service:      service,
		languageCode: languageCode,
		voice:        strings.TrimSpace(voice),
		speakingRate: speakingRate,
	}, nil
}

// Synthesize 返回文本对应的 MP3 数据。
func (n *Narrator) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if n == nil || n.service == nil {
		return nil, fmt.Errorf("narrator not configured")
	}

	req := &texttospeech.SynthesizeSpeechRequest{
		Input: &texttospeech.SynthesisInput{Text: text},
		Voice: &texttospeech.VoiceSelectionParams{
			LanguageCode: n.languageCode,
			Name:         n.voice,
		},
		AudioConfig: &texttospeech.AudioConfig{
			AudioEncoding: audioEncodingMP3,
			SpeakingRate:  n.speakingRate,
		},
	}

	resp, err := n.service.Text.Synthesize(req).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("synthesize speech: %w", err)
	}

	audio, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio content: %w", err)
	}
	return audio, nil
}
