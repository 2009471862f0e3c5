package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const synthesisSystemPrompt = `You are an internal knowledge assistant for %s.
Your role is to answer employee questions based ONLY on the provided context documents.

Rules:
1. Answer ONLY based on the provided context. Do not use external knowledge.
2. If the context does not contain enough information, set confidence to "low" and say you cannot answer.
3. Always cite your sources by referencing the document title.
4. Be concise, professional, and helpful.
5. Never fabricate or guess information.
6. Structure your response as valid JSON matching the output format below.

Output JSON format:
{
  "answer": "Your answer here",
  "confidence": "high|medium|low",
  "sources": [
    {"document_title": "...", "excerpt": "relevant excerpt...", "relevance_score": 0.95}
  ],
  "reasoning": "Brief explanation of how you arrived at this answer"
}`

const synthesisUserPrompt = `Context documents:
%s

---
Question: %s

Respond with valid JSON only.`

// OpenAISynthesizer 调用OpenAI Chat Completion生成答案，
// 要求模型输出严格匹配StructuredAnswer的JSON。解析失败视为
// 合成失败，不做部分成功处理，也不重试。
type OpenAISynthesizer struct {
	client      *openai.Client
	model       string
	temperature float32
}

// NewOpenAISynthesizer 创建OpenAI答案合成器
func NewOpenAISynthesizer(apiKey, model string, temperature float64) (*OpenAISynthesizer, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("openai api key is empty")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAISynthesizer{
		client:      openai.NewClient(apiKey),
		model:       model,
		temperature: float32(temperature),
	}, nil
}

func (s *OpenAISynthesizer) Model() string {
	return s.model
}

func (s *OpenAISynthesizer) Synthesize(ctx context.Context, tenantName, question string, matches []SearchMatch) (*StructuredAnswer, error) {
	// 空检索结果不调用模型，直接返回信息不足
	if len(matches) == 0 {
		return insufficientAnswer(s.model), nil
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		Temperature: s.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: fmt.Sprintf(synthesisSystemPrompt, tenantName),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf(synthesisUserPrompt, formatContext(matches), question),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("chat completion returned no choices")
	}

	answer, err := parseStructuredAnswer(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	answer.ModelUsed = s.model
	answer.TokenUsage = estimateUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	return answer, nil
}

// formatContext 将检索结果拼装为带来源标注的上下文
func formatContext(matches []SearchMatch) string {
	var parts []string
	for i, m := range matches {
		parts = append(parts, fmt.Sprintf("[%d. Document: %s]\n%s\n(Relevance: %.2f)",
			i+1, m.DocumentTitle, m.Content, m.Score))
	}
	if len(parts) == 0 {
		return "(No relevant documents found)"
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// parseStructuredAnswer 解析模型回复。形状不符合约定即失败。
func parseStructuredAnswer(content string) (*StructuredAnswer, error) {
	var answer StructuredAnswer
	if err := json.Unmarshal([]byte(content), &answer); err != nil {
		return nil, fmt.Errorf("model response is not valid JSON: %w", err)
	}
	if strings.TrimSpace(answer.Answer) == "" {
		return nil, errors.New("model response missing answer field")
	}
	switch answer.Confidence {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
	default:
		return nil, fmt.Errorf("model response has invalid confidence %q", answer.Confidence)
	}
	if answer.Sources == nil {
		answer.Sources = []AnswerSource{}
	}
	return &answer, nil
}
