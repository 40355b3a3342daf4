package entity

import "strings"

// DefaultRecentCount 未指定时使用的最近消息条数
const DefaultRecentCount = 20

// DefaultSessionID 单章生成未提供小说 ID 时的会话标识
const DefaultSessionID = "default"

// GenerationConfig 生成开关与模型选择
type GenerationConfig struct {
	ModelName      string `json:"model_name,omitempty"`
	UseMemory      bool   `json:"use_memory"`
	ReadCompressed bool   `json:"read_compressed"`
	UseCompression bool   `json:"use_compression"`
	UseState       bool   `json:"use_state"`
	UseWorldBible  bool   `json:"use_world_bible"`
	UpdateState    bool   `json:"update_state"`
	RecentCount    int    `json:"recent_count"`
}

// Normalize 补齐默认值
func (c GenerationConfig) Normalize() GenerationConfig {
	c.ModelName = strings.TrimSpace(c.ModelName)
	if c.RecentCount <= 0 {
		c.RecentCount = DefaultRecentCount
	}
	return c
}

// GenerationParameters 单章生成请求参数
type GenerationParameters struct {
	TemplateID     string `json:"template_id"`
	ChapterOutline string `json:"chapter_outline"`
	ModelName      string `json:"model_name,omitempty"`
	UseMemory      bool   `json:"use_memory"`
	ReadCompressed bool   `json:"read_compressed"`
	UseCompression bool   `json:"use_compression"`
	UseState       bool   `json:"use_state"`
	UseWorldBible  bool   `json:"use_world_bible"`
	UpdateState    bool   `json:"update_state"`
	RecentCount    int    `json:"recent_count"`
	SessionID      string `json:"session_id"`
	NovelID        string `json:"novel_id,omitempty"`
}

// NewGenerationParameters 按配置组装参数，sessionID 取小说 ID
func NewGenerationParameters(novelID, templateID, outline string, cfg GenerationConfig) GenerationParameters {
	cfg = cfg.Normalize()
	sessionID := novelID
	if sessionID == "" {
		sessionID = DefaultSessionID
	}
	return GenerationParameters{
		TemplateID:     templateID,
		ChapterOutline: outline,
		ModelName:      cfg.ModelName,
		UseMemory:      cfg.UseMemory,
		ReadCompressed: cfg.ReadCompressed,
		UseCompression: cfg.UseCompression,
		UseState:       cfg.UseState,
		UseWorldBible:  cfg.UseWorldBible,
		UpdateState:    cfg.UpdateState,
		RecentCount:    cfg.RecentCount,
		SessionID:      sessionID,
		NovelID:        novelID,
	}
}

// ChapterResult 生成结果
type ChapterResult struct {
	Content   string `json:"content"`
	WordCount int    `json:"word_count"`
}

// SavedChapter 章节保存结果
type SavedChapter struct {
	Filename  string `json:"filename"`
	FilePath  string `json:"file_path,omitempty"`
	WordCount int    `json:"word_count,omitempty"`
}

// NovelProgress 小说当前进度
type NovelProgress struct {
	NovelID           string `json:"novel_id"`
	MaxChapter        int    `json:"max_chapter"`
	TotalChapterFiles int    `json:"total_chapter_files"`
	StateChapter      int    `json:"state_chapter"`
	SyncStatus        string `json:"sync_status,omitempty"`
	MemoryChunks      int    `json:"memory_chunks"`
	MemoryMessages    int    `json:"memory_messages"`
	HasWorldBible     bool   `json:"has_world_bible"`
}

// NextChapter 下一章章节号
func (p NovelProgress) NextChapter() int {
	return p.MaxChapter + 1
}
