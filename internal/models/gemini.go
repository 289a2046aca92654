package models

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"google.golang.org/genai"

	"github.com/easeaico/storybook/internal/utils"
)

// cardSchema 约束卡片输出为六个字符串字段。
var cardSchema = &jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"character_name":  {Type: "string", Description: "캐릭터 이름"},
		"character_type":  {Type: "string", Description: "원래 사물/동물"},
		"personality":     {Type: "string", Description: "성격"},
		"magic_power":     {Type: "string", Description: "마법 능력"},
		"dialogue":        {Type: "string", Description: "캐릭터의 대사"},
		"story_narration": {Type: "string", Description: "동화책 서술형 상황 묘사"},
	},
	Required: []string{"character_name", "character_type", "personality", "magic_power", "dialogue", "story_narration"},
}

// 放宽安全过滤，避免普通家庭照片被拒绝。
var relaxedSafetySettings = []*genai.SafetySetting{
	{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockNone},
	{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockNone},
	{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockNone},
	{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockNone},
}

// NewGeminiClient 创建 Gemini API 客户端。
func NewGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return client, nil
}

// CardModel 以 JSON 模式把照片描述为故事卡片。
type CardModel struct {
	client      *genai.Client
	model       string
	temperature float32
}

func NewGeminiCardModel(client *genai.Client, model string, temperature float32) (*CardModel, error) {
	if client == nil {
		return nil, fmt.Errorf("genai client is nil")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("model name cannot be empty")
	}
	return &CardModel{
		client:      client,
		model:       strings.TrimSpace(model),
		temperature: temperature,
	}, nil
}

func (m *CardModel) DescribeImage(ctx context.Context, instruction string, image []byte, mimeType string) (string, error) {
	if m == nil || m.client == nil {
		return "", fmt.Errorf("card model not configured")
	}
	if len(image) == 0 {
		return "", fmt.Errorf("image cannot be empty")
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(instruction),
			genai.NewPartFromBytes(image, mimeType),
		}, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		Temperature:        genai.Ptr(m.temperature),
		ResponseMIMEType:   "application/json",
		ResponseJsonSchema: cardSchema,
		SafetySettings:     relaxedSafetySettings,
	}

	resp, err := m.client.Models.GenerateContent(ctx, m.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("generate card: %w", err)
	}
	return responseText(resp)
}

// StoryWriter 使用 Gemini 文本模型撰写最终故事。
type StoryWriter struct {
	client      *genai.Client
	model       string
	temperature float32
}

func NewGeminiStoryWriter(client *genai.Client, model string, temperature float32) (*StoryWriter, error) {
	if client == nil {
		return nil, fmt.Errorf("genai client is nil")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("model name cannot be empty")
	}
	return &StoryWriter{
		client:      client,
		model:       strings.TrimSpace(model),
		temperature: temperature,
	}, nil
}

func (w *StoryWriter) Write(ctx context.Context, prompt string) (string, error) {
	if w == nil || w.client == nil {
		return "", fmt.Errorf("story writer not configured")
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	config := &genai.GenerateContentConfig{
		Temperature:    genai.Ptr(w.temperature),
		SafetySettings: relaxedSafetySettings,
	}
	resp, err := w.client.Models.GenerateContent(ctx, w.model, genai.Text(prompt), config)
	if err != nil {
		return "", fmt.Errorf("generate story: %w", err)
	}
	return responseText(resp)
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return "", fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
		}
		return "", fmt.Errorf("empty model response")
	}
	text := strings.TrimSpace(utils.ExtractContentText(resp.Candidates[0].Content))
	if text == "" {
		return "", fmt.Errorf("model response has no text")
	}
	return text, nil
}
