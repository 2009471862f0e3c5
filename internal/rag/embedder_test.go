package rag

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unitNorm(t *testing.T, vec []float32) float64 {
	t.Helper()
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

func TestHashEmbedderDeterministic(t *testing.T) {
	embedder := NewHashEmbedder(256)
	ctx := context.Background()

	first, err := embedder.Embed(ctx, "What is the leave policy?")
	require.NoError(t, err)
	second, err := embedder.Embed(ctx, "What is the leave policy?")
	require.NoError(t, err)

	// 相同输入必须逐位相同
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i], second[i])
	}
}

func TestHashEmbedderDimensions(t *testing.T) {
	embedder := NewHashEmbedder(64)
	assert.Equal(t, 64, embedder.Dimensions())

	vec, err := embedder.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Len(t, vec, 64)

	// 非法维度回落到默认值
	assert.Equal(t, 1536, NewHashEmbedder(0).Dimensions())
}

func TestHashEmbedderUnitNorm(t *testing.T) {
	embedder := NewHashEmbedder(128)

	vec, err := embedder.Embed(context.Background(), "employees are entitled to paid annual leave")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, unitNorm(t, vec), 1e-5)
}

func TestHashEmbedderEightPairsPerWord(t *testing.T) {
	const dims = 4096
	embedder := NewHashEmbedder(dims)

	got, err := embedder.Embed(context.Background(), "leave")
	require.NoError(t, err)

	// 摘要前18字节读出8对(维度,权重)，归一化后逐位一致
	h := sha256.Sum256([]byte("leave"))
	want := make([]float64, dims)
	pairs := 0
	for i := 0; i < 16; i += 2 {
		idx := int(binary.BigEndian.Uint16(h[i:i+2])) % dims
		want[idx] += float64(binary.BigEndian.Uint16(h[i+2:i+4]))/65535.0*2 - 1
		pairs++
	}
	require.Equal(t, 8, pairs)
	normalize(want)

	for i := range want {
		if want[i] == 0 {
			continue
		}
		assert.InDelta(t, want[i], float64(got[i]), 1e-6, "dimension %d", i)
	}
}

func TestHashEmbedderSharedVocabularyScoresHigher(t *testing.T) {
	embedder := NewHashEmbedder(256)
	ctx := context.Background()

	query, err := embedder.Embed(ctx, "how many days of annual leave do employees get")
	require.NoError(t, err)
	similar, err := embedder.Embed(ctx, "employees get 25 days of paid annual leave")
	require.NoError(t, err)
	unrelated, err := embedder.Embed(ctx, "the quarterly revenue exceeded projections significantly")
	require.NoError(t, err)

	simScore := cosineSimilarity(query, similar, vectorNorm(query))
	unrelatedScore := cosineSimilarity(query, unrelated, vectorNorm(query))
	assert.Greater(t, simScore, unrelatedScore)
}

func TestHashEmbedderEmptyText(t *testing.T) {
	embedder := NewHashEmbedder(64)

	_, err := embedder.Embed(context.Background(), "   ")
	assert.Error(t, err)
}

func TestHashEmbedderNoLettersFallback(t *testing.T) {
	embedder := NewHashEmbedder(64)

	// 无有效单词（全符号），走整段哈希退化路径，仍是单位向量
	vec, err := embedder.Embed(context.Background(), "!!! ??? ***")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, unitNorm(t, vec), 1e-5)
}

func TestHashEmbedderWordOrderInsensitive(t *testing.T) {
	embedder := NewHashEmbedder(128)
	ctx := context.Background()

	// 词集合相同，顺序与重复不影响结果
	a, err := embedder.Embed(ctx, "alpha beta gamma")
	require.NoError(t, err)
	b, err := embedder.Embed(ctx, "gamma alpha beta alpha")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestHashEmbedderCanceledContext(t *testing.T) {
	embedder := NewHashEmbedder(64)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := embedder.Embed(ctx, "some text")
	assert.ErrorIs(t, err, context.Canceled)
}
