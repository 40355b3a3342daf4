// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// BindNovelID 从路径参数获取小说 ID
func BindNovelID(c *gin.Context) string {
	return strings.TrimSpace(c.Param("nid"))
}

// BindRunID 从路径参数获取运行 ID
func BindRunID(c *gin.Context) string {
	return strings.TrimSpace(c.Param("rid"))
}

// BindSince 读取 ?since=，SSE 重连时也接受 Last-Event-ID
func BindSince(c *gin.Context) int64 {
	raw := c.Query("since")
	if raw == "" {
		raw = c.GetHeader("Last-Event-ID")
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// BindLimit 读取 ?limit=，超出范围时使用默认值
func BindLimit(c *gin.Context, defaultVal, maxVal int) int {
	v := parseIntWithDefault(c.Query("limit"), defaultVal)
	if v < 1 || v > maxVal {
		return defaultVal
	}
	return v
}

// parseIntWithDefault 解析整数，失败时返回默认值
func parseIntWithDefault(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
