// Package narrative turns a performance summary into coach-style prose.
// The primary path calls an OpenAI-compatible model; when the model is not
// configured or the call fails, a deterministic templated analysis derived
// purely from the summary figures is returned instead, so a user-visible
// analysis is never blocked by the generator being down.
package narrative

import (
	"context"
	"fmt"
	"log"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"mockexam-service/internal/domain"
)

// Generator produces free-form analysis text for a performance summary.
type Generator interface {
	Analyze(ctx context.Context, summary domain.PerformanceSummary, opts Options) (string, error)
}

// Options carries optional prompt context.
type Options struct {
	CurrentDate   string // e.g. "2025-10-04"
	DaysRemaining int    // days until the real exam; 0 means unknown
}

// Client wraps an OpenAI-compatible chat API.
type Client struct {
	api   *openai.Client
	model string
}

// New creates a generator client. baseURL may point at any
// OpenAI-compatible endpoint (including a local model server).
func New(baseURL, apiKey, modelName string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}
}

// Analyze sends the summary to the model and returns its prose.
func (c *Client) Analyze(ctx context.Context, summary domain.PerformanceSummary, opts Options) (string, error) {
	prompt, err := buildAnalysisPrompt(summary, opts)
	if err != nil {
		return "", err
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("narrative API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("narrative model returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Followup answers a free-form question about a prior analysis, with the
// summary figures as context.
func (c *Client) Followup(ctx context.Context, summary domain.PerformanceSummary, question string) (string, error) {
	prompt, err := buildFollowupContext(summary, question)
	if err != nil {
		return "", err
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("narrative follow-up call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("narrative model returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Service is the resilient front: model first, deterministic fallback on
// any failure. A nil client always falls back.
type Service struct {
	client *Client
}

func NewService(client *Client) *Service {
	return &Service{client: client}
}

func (s *Service) Analyze(ctx context.Context, summary domain.PerformanceSummary, opts Options) (string, error) {
	if s.client != nil {
		text, err := s.client.Analyze(ctx, summary, opts)
		if err == nil && strings.TrimSpace(text) != "" {
			return text, nil
		}
		if err != nil {
			log.Printf("narrative generator unavailable, using fallback: %v", err)
		}
	}
	return Fallback(summary)
}
