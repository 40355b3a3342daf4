package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterV1Routes 注册 v1 版本路由，generateLimit 作用于会触发生成的接口
func RegisterV1Routes(v1 *gin.RouterGroup, h *Handlers, generateLimit gin.HandlerFunc) {
	// 批量生成
	batches := v1.Group("/batches")
	{
		batches.POST("", generateLimit, h.Batch.StartBatch)
		batches.GET("/defaults", h.Batch.GetDefaults)
		batches.GET("/history", h.Batch.ListHistory)

		batches.GET("/current", h.Batch.GetCurrent)
		batches.DELETE("/current", h.Batch.CancelBatch)
		batches.GET("/current/logs", h.Batch.ListLogs)
		batches.GET("/current/events", h.Batch.StreamEvents)

		batches.GET("/:rid/logs", h.Batch.ListRunLogs)
	}

	// 小说
	novels := v1.Group("/novels")
	{
		novels.GET("/:nid/progress", h.Novel.GetProgress)
		novels.DELETE("/:nid/outlines/:chapter/cache", h.Novel.InvalidateOutline)
	}

	// 单章生成
	v1.POST("/chapters/generate", generateLimit, h.Chapter.GenerateChapter)

	// 细纲工具
	v1.POST("/outlines/chapter-index", h.Chapter.ExtractChapterIndex)
}
