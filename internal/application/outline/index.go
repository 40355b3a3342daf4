// Package outline 提供章节细纲相关的纯文本工具：章节号提取与默认细纲
package outline

import (
	"regexp"
	"strconv"
)

// indexPatterns 按顺序尝试，第一个匹配即返回
var indexPatterns = []*regexp.Regexp{
	regexp.MustCompile(`第(\d+)章`),
	regexp.MustCompile(`(?i)chapter[_\s]*(\d+)`),
	regexp.MustCompile(`章节[_\s]*(\d+)`),
	regexp.MustCompile(`【第(\d+)章`),
}

// ExtractChapterIndex 从细纲文本中提取章节号，未找到时 ok=false
func ExtractChapterIndex(text string) (index int, ok bool) {
	for _, re := range indexPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			// 超出 int 范围的数字，换下一个模式
			continue
		}
		return n, true
	}
	return 0, false
}

// ResolveChapterIndex 显式章节号优先，其次从细纲提取，最后回退为 1
// defaulted 为 true 表示使用了回退值
func ResolveChapterIndex(explicit int, text string) (index int, defaulted bool) {
	if explicit > 0 {
		return explicit, false
	}
	if n, ok := ExtractChapterIndex(text); ok && n > 0 {
		return n, false
	}
	return 1, true
}
