package rag

import (
	"context"
	"fmt"
	"strings"
)

// 置信度等级
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// AnswerSource 答案引用来源
type AnswerSource struct {
	DocumentTitle  string  `json:"document_title"`
	Excerpt        string  `json:"excerpt"`
	RelevanceScore float64 `json:"relevance_score"`
}

// TokenUsage token消耗统计
type TokenUsage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// StructuredAnswer 统一的结构化答案，两种合成器输出形状完全一致
type StructuredAnswer struct {
	Answer     string         `json:"answer"`
	Confidence string         `json:"confidence"`
	Sources    []AnswerSource `json:"sources"`
	Reasoning  string         `json:"reasoning"`
	ModelUsed  string         `json:"model_used"`
	TokenUsage TokenUsage     `json:"token_usage"`
}

// Synthesizer 答案合成接口。实现只允许使用传入的检索结果作答，
// 检索为空时必须返回low置信度和信息不足的说明。
type Synthesizer interface {
	Synthesize(ctx context.Context, tenantName, question string, matches []SearchMatch) (*StructuredAnswer, error)
	Model() string
}

const stubModelName = "stub-llm-v1"

// StubSynthesizer 确定性合成器：直接从检索到的分块文本构造答案，
// 置信度由最高相似度按固定阈值映射。不访问任何外部服务，
// 不会产出分块之外的内容。
type StubSynthesizer struct {
	threshold float64
}

// NewStubSynthesizer 创建确定性合成器
func NewStubSynthesizer(relevanceThreshold float64) *StubSynthesizer {
	if relevanceThreshold <= 0 {
		relevanceThreshold = 0.3
	}
	return &StubSynthesizer{threshold: relevanceThreshold}
}

func (s *StubSynthesizer) Model() string {
	return stubModelName
}

func (s *StubSynthesizer) Synthesize(ctx context.Context, tenantName, question string, matches []SearchMatch) (*StructuredAnswer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	relevant := make([]SearchMatch, 0, len(matches))
	for _, m := range matches {
		if m.Score >= s.threshold {
			relevant = append(relevant, m)
		}
	}
	if len(relevant) == 0 {
		return insufficientAnswer(stubModelName), nil
	}
	if len(relevant) > 3 {
		relevant = relevant[:3]
	}

	var answerParts []string
	sources := make([]AnswerSource, 0, len(relevant))
	for _, m := range relevant {
		if sentence := firstSentence(m.Content); sentence != "" {
			answerParts = append(answerParts, sentence)
		}
		sources = append(sources, AnswerSource{
			DocumentTitle:  m.DocumentTitle,
			Excerpt:        truncateRunes(m.Content, 200),
			RelevanceScore: roundScore(m.Score),
		})
	}

	answer := "Information found in relevant documents."
	if len(answerParts) > 0 {
		answer = "Based on the available documents: " + strings.Join(answerParts, " ")
	}

	top := relevant[0].Score
	confidence := ConfidenceLow
	if top > 0.7 {
		confidence = ConfidenceHigh
	} else if top > 0.5 {
		confidence = ConfidenceMedium
	}

	inputTokens := len(strings.Fields(question))
	for _, m := range relevant {
		inputTokens += len(strings.Fields(m.Content))
	}
	outputTokens := len(strings.Fields(answer))

	return &StructuredAnswer{
		Answer:     answer,
		Confidence: confidence,
		Sources:    sources,
		Reasoning: fmt.Sprintf("Answer derived from %d relevant document(s). Top relevance score: %.2f.",
			len(relevant), top),
		ModelUsed:  stubModelName,
		TokenUsage: estimateUsage(inputTokens, outputTokens),
	}, nil
}

// insufficientAnswer 检索为空或全部低于阈值时的统一回答
func insufficientAnswer(model string) *StructuredAnswer {
	return &StructuredAnswer{
		Answer:     "I don't have enough information in the available documents to answer this question.",
		Confidence: ConfidenceLow,
		Sources:    []AnswerSource{},
		Reasoning:  "No relevant context found in the knowledge base.",
		ModelUsed:  model,
		TokenUsage: TokenUsage{},
	}
}

// firstSentence 取第一个有实际内容的句子
func firstSentence(text string) string {
	for _, part := range strings.Split(text, ".") {
		part = strings.TrimSpace(part)
		if len(part) > 20 {
			return part + "."
		}
	}
	return ""
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func roundScore(score float64) float64 {
	return float64(int(score*1000+0.5)) / 1000
}

// estimateUsage gpt-4o-mini价格：输入$0.15/M、输出$0.60/M
func estimateUsage(inputTokens, outputTokens int) TokenUsage {
	cost := (float64(inputTokens)*0.15 + float64(outputTokens)*0.60) / 1_000_000
	return TokenUsage{
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		CostUSD:      float64(int(cost*1_000_000+0.5)) / 1_000_000,
	}
}
