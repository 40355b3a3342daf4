package outline

import (
	"fmt"
	"strings"
)

// defaultTemplate 细纲缺失时使用的通用模板，只由章节号参数化
const defaultTemplate = `【第%d章】

开场：
- 继续上一章的剧情发展

发展：
- 推进主线剧情

高潮：
- 制造冲突和转折

结尾：
- 为下一章留下悬念

目标字数：2800字`

// Default 生成第 chapterIndex 章的默认细纲，永不为空
func Default(chapterIndex int) string {
	return fmt.Sprintf(defaultTemplate, chapterIndex)
}

// OrDefault 细纲为空白时回退到默认细纲
func OrDefault(text string, chapterIndex int) (string, bool) {
	if strings.TrimSpace(text) == "" {
		return Default(chapterIndex), true
	}
	return text, false
}
