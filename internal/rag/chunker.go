package rag

import (
	"regexp"
	"strings"
	"unicode"
)

// Chunk 表示分块后的文本片段
type Chunk struct {
	Index int
	Text  string
}

// Chunker 文本分块器：按段落边界切分，超长段落在最近的空白处硬切，
// 相邻块共享前一块末尾的overlap字符以保留跨块上下文。
type Chunker struct {
	maxSize int
	overlap int
}

var paragraphSplitter = regexp.MustCompile(`\n\s*\n`)

// NewChunker 创建分块器
func NewChunker(maxSize, overlap int) *Chunker {
	if maxSize <= 0 {
		maxSize = 500
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= maxSize {
		overlap = maxSize / 4
	}
	return &Chunker{
		maxSize: maxSize,
		overlap: overlap,
	}
}

// Split 将文本切分为多个chunk。相同输入和参数始终产生相同序列。
func (c *Chunker) Split(text string) []Chunk {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	// 短文本：单块，无overlap
	if len([]rune(trimmed)) <= c.maxSize {
		return []Chunk{{Index: 0, Text: trimmed}}
	}

	blocks := c.splitBlocks(trimmed)

	var pieces []string
	var current string
	for _, block := range blocks {
		if current != "" && runeLen(current)+runeLen(block)+2 > c.maxSize {
			pieces = append(pieces, strings.TrimSpace(current))
			if c.overlap > 0 && runeLen(current) > c.overlap {
				current = tailRunes(current, c.overlap) + "\n\n" + block
			} else {
				current = block
			}
			continue
		}
		if current == "" {
			current = block
		} else {
			current = current + "\n\n" + block
		}
	}
	if strings.TrimSpace(current) != "" {
		pieces = append(pieces, strings.TrimSpace(current))
	}

	chunks := make([]Chunk, 0, len(pieces))
	for i, piece := range pieces {
		chunks = append(chunks, Chunk{Index: i, Text: piece})
	}
	return chunks
}

// splitBlocks 按空行切段落，超过预算的段落继续在空白边界硬切。
// 预算预留overlap和段落分隔符的空间，保证带overlap前缀的块不超过maxSize。
func (c *Chunker) splitBlocks(text string) []string {
	budget := c.maxSize - c.overlap - 2
	if budget <= 0 {
		budget = c.maxSize
	}

	paragraphs := paragraphSplitter.Split(text, -1)
	var blocks []string
	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if runeLen(para) <= budget {
			blocks = append(blocks, para)
			continue
		}
		blocks = append(blocks, hardSplit(para, budget)...)
	}
	return blocks
}

// hardSplit 在不超过budget的最近空白处切分，找不到空白则按budget硬切
func hardSplit(text string, budget int) []string {
	var parts []string
	runes := []rune(text)
	for len(runes) > 0 {
		if len(runes) <= budget {
			parts = append(parts, strings.TrimSpace(string(runes)))
			break
		}
		cut := budget
		for i := budget; i > 0; i-- {
			if unicode.IsSpace(runes[i]) {
				cut = i
				break
			}
		}
		part := strings.TrimSpace(string(runes[:cut]))
		if part != "" {
			parts = append(parts, part)
		}
		runes = runes[cut:]
		for len(runes) > 0 && unicode.IsSpace(runes[0]) {
			runes = runes[1:]
		}
	}
	return parts
}

func runeLen(s string) int {
	return len([]rune(s))
}

func tailRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
