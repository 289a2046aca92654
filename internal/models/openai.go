// Package models 提供各家模型提供方的适配器实现。
package models

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const storySystemPrompt = "당신은 아이들에게 읽어줄 동화를 쓰는 다정한 작가입니다. 요청받은 형식을 정확히 지켜 주세요."

// OpenAIStoryWriter 封装 OpenAI 兼容的聊天接口，用于生成最终故事。
type OpenAIStoryWriter struct {
	client      *openai.Client
	model       string
	temperature float64
}

func NewOpenAIStoryWriter(apiKey, baseURL, model string, temperature float64) (*OpenAIStoryWriter, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("model name cannot be empty")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)

	return &OpenAIStoryWriter{
		client:      &client,
		model:       strings.TrimSpace(model),
		temperature: temperature,
	}, nil
}

func (w *OpenAIStoryWriter) Write(ctx context.Context, prompt string) (string, error) {
	if w == nil || w.client == nil {
		return "", fmt.Errorf("story writer not configured")
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	resp, err := w.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: w.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(storySystemPrompt),
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(w.temperature),
	})
	if err != nil {
		slog.Error("failed to call llm API", "model", w.model, "error", err.Error())
		return "", fmt.Errorf("failed to call chat completions: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty chat completion response")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("chat completion has no content")
	}
	return text, nil
}
