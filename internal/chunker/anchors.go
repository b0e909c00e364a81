package chunker

import "sort"

// PageAnchor 标记一页的起始位置：Offset 是该页第一个字符在全文中的
// rune 偏移，Page 是从 1 开始的页码。锚点序列由文本提取协作方给出。
type PageAnchor struct {
	Offset int
	Page   int
}

// AnchorsFromText 从 Tika 的纯文本输出派生页码锚点。
// Tika 对 PDF 等分页格式以换页符（\f）分隔页面；纯文本等无分页
// 格式没有换页符，此时整个文档视为第 1 页。
func AnchorsFromText(text string) []PageAnchor {
	anchors := []PageAnchor{{Offset: 0, Page: 1}}
	page := 1
	for i, r := range []rune(text) {
		if r == '\f' {
			page++
			anchors = append(anchors, PageAnchor{Offset: i + 1, Page: page})
		}
	}
	return anchors
}

// pageAt 返回指定字符偏移所在的页码。锚点必须按 Offset 升序排列。
// 锚点为空时返回 1。
func pageAt(anchors []PageAnchor, offset int) int {
	if len(anchors) == 0 {
		return 1
	}
	// 第一个 Offset 大于 offset 的锚点的前一个即所在页
	i := sort.Search(len(anchors), func(i int) bool {
		return anchors[i].Offset > offset
	})
	if i == 0 {
		return anchors[0].Page
	}
	return anchors[i-1].Page
}
