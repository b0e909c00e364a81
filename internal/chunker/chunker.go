// Package chunker 将文档提取出的纯文本切分为带重叠的固定窗口分块。
// 分块是索引与检索的最小单元。
package chunker

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrEmptyInput 表示输入文本为空或全为空白符，没有可索引的内容。
// 调用方必须跳过该文档的向量化与索引，而不是静默生成零个分块。
var ErrEmptyInput = errors.New("chunker: 输入文本为空")

// Config 是分块器的不可变配置。
type Config struct {
	// Size 是名义分块大小（字符数，按 rune 计）。
	Size int
	// Overlap 是相邻分块的重叠字符数，要求 0 <= Overlap < Size。
	Overlap int
	// Lookback 是分块边界回退寻找空白符的最大距离（尽力而为）。
	// 实际生效值不会超过 Overlap，以保证窗口覆盖无缝。
	Lookback int
}

// Chunk 是文档文本的一个连续切片，携带稳定 ID 与位置元数据。
// 分块一经生成即不可变，仅随所属文档一起删除。
type Chunk struct {
	// ID 由文档 ID 和序号派生，例如 "a1b2c3d4_chunk_0"。
	ID         string
	DocumentID string
	// Index 是分块在文档内的序号，从 0 开始。
	Index int
	Text  string
	// StartChar/EndChar 是分块在原文中的字符区间 [StartChar, EndChar)。
	StartChar int
	EndChar   int
	// Page 是分块起始位置所在的页码，从 1 开始；无分页信息时为 1。
	Page int
}

// Chunker 按固定窗口算法切分文本。
type Chunker struct {
	cfg Config
}

// New 创建一个分块器。Size 必须为正且 Overlap 严格小于 Size。
func New(cfg Config) (*Chunker, error) {
	if cfg.Size <= 0 {
		return nil, fmt.Errorf("chunker: 无效的分块大小 %d", cfg.Size)
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.Size {
		return nil, fmt.Errorf("chunker: 无效的重叠大小 %d (须满足 0 <= overlap < %d)", cfg.Overlap, cfg.Size)
	}
	if cfg.Lookback < 0 {
		cfg.Lookback = 0
	}
	return &Chunker{cfg: cfg}, nil
}

// ChunkID 返回指定文档中第 index 个分块的稳定标识。
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", documentID, index)
}

// Split 将文本切分为有序分块序列，从头到尾覆盖全文、无缝隙、不遗漏结尾。
//
// 窗口指针从 0 开始，每个分块名义上覆盖 [p, p+Size)（裁剪到文本末尾），
// 指针每次前进 Size-Overlap。若名义边界落在词中间，则在不超过
// min(Lookback, Overlap) 的范围内回退到最近的空白符之后；指针的前进
// 始终按名义步长进行，因此分块数量只由文本长度和配置决定。
// 最后一个分块可以短于 Size，但绝不为空；短于 Size 的文本恰好产生一个分块。
func (c *Chunker) Split(documentID, text string, anchors []PageAnchor) ([]Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	runes := []rune(text)
	total := len(runes)
	step := c.cfg.Size - c.cfg.Overlap

	var chunks []Chunk
	for start := 0; start < total; start += step {
		end := start + c.cfg.Size
		last := false
		if end >= total {
			end = total
			last = true
		} else {
			end = c.adjustBoundary(runes, start, end)
		}

		idx := len(chunks)
		chunks = append(chunks, Chunk{
			ID:         ChunkID(documentID, idx),
			DocumentID: documentID,
			Index:      idx,
			Text:       string(runes[start:end]),
			StartChar:  start,
			EndChar:    end,
			Page:       pageAt(anchors, start),
		})
		if last {
			break
		}
	}

	return chunks, nil
}

// adjustBoundary 在名义边界处尽力避免切断词语：若边界两侧都是非空白
// 字符，则向回寻找最近的空白符，并把边界移到它之后。回退距离被限制在
// min(Lookback, Overlap) 以内，保证调整后的边界仍不早于下一分块的起点，
// 窗口覆盖因此始终无缝。找不到合适断点时保持名义边界不变。
func (c *Chunker) adjustBoundary(runes []rune, start, end int) int {
	lookback := c.cfg.Lookback
	if lookback > c.cfg.Overlap {
		lookback = c.cfg.Overlap
	}
	if lookback == 0 {
		return end
	}
	// 边界恰好落在词间时无需调整
	if unicode.IsSpace(runes[end]) || unicode.IsSpace(runes[end-1]) {
		return end
	}
	for i := end - 1; i > end-lookback && i > start; i-- {
		if unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}
	return end
}
