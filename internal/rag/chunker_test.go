package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkerSplitEmpty(t *testing.T) {
	chunker := NewChunker(500, 50)

	assert.Nil(t, chunker.Split(""))
	assert.Nil(t, chunker.Split("   \n\t  "))
}

func TestChunkerSplitShortText(t *testing.T) {
	chunker := NewChunker(500, 50)

	chunks := chunker.Split("A single short paragraph.")
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, "A single short paragraph.", chunks[0].Text)
}

func TestChunkerSplitDeterministic(t *testing.T) {
	chunker := NewChunker(100, 20)
	text := strings.Repeat("Paragraph one has some words in it.\n\n", 10)

	first := chunker.Split(text)
	second := chunker.Split(text)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i], second[i])
	}
}

func TestChunkerMaxSizeRespected(t *testing.T) {
	maxSize := 100
	chunker := NewChunker(maxSize, 20)

	var sb strings.Builder
	for i := 0; i < 30; i++ {
		sb.WriteString("Sentence number with several filler words inside.\n\n")
	}

	chunks := chunker.Split(sb.String())
	require.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len([]rune(chunk.Text)), maxSize,
			"chunk %d exceeds max size", chunk.Index)
		assert.NotEmpty(t, strings.TrimSpace(chunk.Text))
	}
}

func TestChunkerIndexesAreSequential(t *testing.T) {
	chunker := NewChunker(80, 10)
	text := strings.Repeat("Another block of text to force multiple chunks here.\n\n", 12)

	chunks := chunker.Split(text)
	require.Greater(t, len(chunks), 1)
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Index)
	}
}

func TestChunkerOverlapSharedBetweenChunks(t *testing.T) {
	overlap := 20
	chunker := NewChunker(100, overlap)
	text := strings.Repeat("The quick brown fox jumps over the lazy dog today.\n\n", 10)

	chunks := chunker.Split(text)
	require.Greater(t, len(chunks), 1)

	// 后一块应以前一块的末尾片段开头
	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1].Text)
		tail := strings.TrimSpace(string(prev[len(prev)-overlap:]))
		if tail == "" {
			continue
		}
		assert.True(t, strings.HasPrefix(chunks[i].Text, tail),
			"chunk %d does not start with tail of chunk %d", i, i-1)
	}
}

func TestChunkerLongParagraphHardSplit(t *testing.T) {
	chunker := NewChunker(50, 0)
	// 单段落远超maxSize，没有空行可用
	text := strings.Repeat("word ", 60)

	chunks := chunker.Split(text)
	require.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len([]rune(chunk.Text)), 50)
	}
}

func TestChunkerInvalidParamsFallBack(t *testing.T) {
	chunker := NewChunker(0, -5)
	assert.Equal(t, 500, chunker.maxSize)
	assert.Equal(t, 0, chunker.overlap)

	// overlap不小于maxSize时收缩为四分之一
	chunker = NewChunker(100, 100)
	assert.Equal(t, 25, chunker.overlap)
}
