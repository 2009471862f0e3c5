package rag

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"math"
	"sort"
	"strings"
	"unicode"
)

// Embedder 定义文本向量化接口。两种实现输出维度必须一致，
// 检索层不感知具体策略。
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Ready() bool
}

// HashEmbedder 确定性词哈希向量化器：每个去重后的单词经SHA-256
// 映射到若干维度并累加贡献，最后做L2归一化。相同文本必然产生
// 逐位相同的向量；共享词汇的文本余弦相似度更高。无任何外部依赖。
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder 创建确定性向量化器
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 1536
	}
	return &HashEmbedder{dimensions: dimensions}
}

func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("text is empty")
	}

	vec := make([]float64, e.dimensions)
	for _, word := range distinctWords(text) {
		h := sha256.Sum256([]byte(word))
		// 每个单词贡献8个维度：h[i:i+2]选维度，h[i+2:i+4]定权重
		for i := 0; i < 16; i += 2 {
			idx := int(binary.BigEndian.Uint16(h[i:i+2])) % e.dimensions
			val := float64(binary.BigEndian.Uint16(h[i+2:i+4]))/65535.0*2 - 1
			vec[idx] += val
		}
	}

	if l2Norm(vec) == 0 {
		// 无有效单词时退化为整段文本哈希，保证仍返回非零单位向量
		h := sha256.Sum256([]byte(text))
		for i := range vec {
			vec[i] = float64(h[i%len(h)])/255.0*2 - 1
		}
	}

	normalize(vec)

	result := make([]float32, e.dimensions)
	for i, v := range vec {
		result[i] = float32(v)
	}
	return result, nil
}

func (e *HashEmbedder) Dimensions() int {
	return e.dimensions
}

func (e *HashEmbedder) Ready() bool {
	return true
}

// distinctWords 去重并清洗单词，输出排序后的确定性序列
func distinctWords(text string) []string {
	seen := make(map[string]struct{})
	for _, word := range strings.Fields(strings.ToLower(text)) {
		var b strings.Builder
		for _, r := range word {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				b.WriteRune(r)
			}
		}
		clean := b.String()
		if clean == "" {
			continue
		}
		seen[clean] = struct{}{}
	}

	words := make([]string, 0, len(seen))
	for w := range seen {
		words = append(words, w)
	}
	sort.Strings(words)
	return words
}

func l2Norm(vec []float64) float64 {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	return math.Sqrt(sum)
}

func normalize(vec []float64) {
	norm := l2Norm(vec)
	if norm == 0 {
		return
	}
	for i := range vec {
		vec[i] /= norm
	}
}
