// Package novelapi 提供小说生成后端的 HTTP 客户端
package novelapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"z-novel-batch/internal/config"
	"z-novel-batch/internal/domain/entity"
	apperrors "z-novel-batch/pkg/errors"
	"z-novel-batch/pkg/metrics"
	"z-novel-batch/pkg/tracer"
)

const (
	pathNovelInfo   = "/api/novels/%s/info"
	pathReadOutline = "/api/read-outline"
	pathGenerate    = "/api/generate"
	pathSaveChapter = "/api/save-chapter"
	pathHealth      = "/api/health"

	// errorBodyLimit 错误响应体最多读取的字节数
	errorBodyLimit = 4096
)

// Client 后端客户端，同时实现 service.NovelBackend
type Client struct {
	baseURL    string
	httpClient *http.Client
	// generateClient 生成请求单独使用更长的超时
	generateClient *http.Client
}

// NewClient 创建后端客户端
func NewClient(cfg *config.BackendConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	generateTimeout := cfg.GenerateTimeout
	if generateTimeout <= 0 {
		generateTimeout = 10 * time.Minute
	}
	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:     &http.Client{Timeout: timeout},
		generateClient: &http.Client{Timeout: generateTimeout},
	}
}

type novelInfoResponse struct {
	NovelID string `json:"novel_id"`
	State   struct {
		LatestChapter int `json:"latest_chapter"`
	} `json:"state"`
	Chapters struct {
		TotalChapters     int `json:"total_chapters"`
		LatestChapterFile int `json:"latest_chapter_file"`
	} `json:"chapters"`
	Memory struct {
		TotalMessages int `json:"total_messages"`
		TotalChunks   int `json:"total_chunks"`
	} `json:"memory"`
	World struct {
		HasWorldBible bool `json:"has_world_bible"`
	} `json:"world"`
	Summary struct {
		SyncStatus string `json:"sync_status"`
	} `json:"summary"`
}

type readOutlineRequest struct {
	NovelID      string `json:"novel_id"`
	ChapterIndex int    `json:"chapter_index"`
}

type readOutlineResponse struct {
	Outline *string `json:"outline"`
}

type generateResponse struct {
	Content   string `json:"content"`
	WordCount int    `json:"word_count"`
}

type saveChapterRequest struct {
	Content      string `json:"content"`
	NovelID      string `json:"novel_id"`
	ChapterIndex int    `json:"chapter_index"`
	AutoSave     bool   `json:"auto_save"`
}

type saveChapterResponse struct {
	Filename  string `json:"filename"`
	FilePath  string `json:"file_path"`
	WordCount int    `json:"word_count"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// statusError 后端返回的非 2xx 响应
type statusError struct {
	StatusCode int
	Message    string
}

func (e *statusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Message)
}

// NovelProgress 查询小说已有章节文件的最大章节号
func (c *Client) NovelProgress(ctx context.Context, novelID string) (*entity.NovelProgress, error) {
	var resp novelInfoResponse
	path := fmt.Sprintf(pathNovelInfo, url.PathEscape(novelID))
	if err := c.do(ctx, c.httpClient, "novel_info", http.MethodGet, path, nil, &resp); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeProgressQueryFailed, "failed to query novel info")
	}
	return &entity.NovelProgress{
		NovelID:           novelID,
		MaxChapter:        resp.Chapters.LatestChapterFile,
		TotalChapterFiles: resp.Chapters.TotalChapters,
		StateChapter:      resp.State.LatestChapter,
		SyncStatus:        resp.Summary.SyncStatus,
		MemoryChunks:      resp.Memory.TotalChunks,
		MemoryMessages:    resp.Memory.TotalMessages,
		HasWorldBible:     resp.World.HasWorldBible,
	}, nil
}

// ChapterOutline 读取章节细纲；404 视为细纲不存在
func (c *Client) ChapterOutline(ctx context.Context, novelID string, chapterIndex int) (string, error) {
	var resp readOutlineResponse
	req := &readOutlineRequest{NovelID: novelID, ChapterIndex: chapterIndex}
	if err := c.do(ctx, c.httpClient, "read_outline", http.MethodPost, pathReadOutline, req, &resp); err != nil {
		var se *statusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return "", apperrors.ErrOutlineUnavailable.WithError(err)
		}
		return "", apperrors.Wrap(err, apperrors.CodeBackendError, "failed to read outline")
	}
	if resp.Outline == nil {
		return "", nil
	}
	return *resp.Outline, nil
}

// Generate 生成章节正文
func (c *Client) Generate(ctx context.Context, params entity.GenerationParameters) (*entity.ChapterResult, error) {
	var resp generateResponse
	if err := c.do(ctx, c.generateClient, "generate", http.MethodPost, pathGenerate, &params, &resp); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeGenerationFailed, "chapter generation request failed")
	}
	wordCount := resp.WordCount
	if wordCount <= 0 {
		wordCount = utf8.RuneCountInString(resp.Content)
	}
	return &entity.ChapterResult{Content: resp.Content, WordCount: wordCount}, nil
}

// SaveChapter 以自动保存方式持久化章节
func (c *Client) SaveChapter(ctx context.Context, content, novelID string, chapterIndex int) (*entity.SavedChapter, error) {
	var resp saveChapterResponse
	req := &saveChapterRequest{
		Content:      content,
		NovelID:      novelID,
		ChapterIndex: chapterIndex,
		AutoSave:     true,
	}
	if err := c.do(ctx, c.httpClient, "save_chapter", http.MethodPost, pathSaveChapter, req, &resp); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodePersistenceFailed, "failed to save chapter")
	}
	return &entity.SavedChapter{
		Filename:  resp.Filename,
		FilePath:  resp.FilePath,
		WordCount: resp.WordCount,
	}, nil
}

// HealthCheck 检查后端可用性
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.do(ctx, c.httpClient, "health", http.MethodGet, pathHealth, nil, nil)
}

// do 发送 JSON 请求并解码响应，out 为 nil 时忽略响应体
func (c *Client) do(ctx context.Context, hc *http.Client, operation, method, path string, in, out any) (err error) {
	ctx, span := tracer.Start(ctx, "novelapi."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
		),
	)
	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			tracer.RecordError(span, err)
		}
		metrics.BackendCallDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
		metrics.BackendCallTotal.WithLabelValues(operation, status).Inc()
		span.End()
	}()

	if c.baseURL == "" {
		return fmt.Errorf("backend base url is empty")
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", operation, err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", operation, err)
	}
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	httpResp, err := hc.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", operation, err)
	}
	defer httpResp.Body.Close()

	span.SetAttributes(attribute.Int("http.response.status_code", httpResp.StatusCode))

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return decodeStatusError(httpResp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", operation, err)
	}
	return nil
}

func decodeStatusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	se := &statusError{StatusCode: resp.StatusCode}

	var er errorResponse
	if err := json.Unmarshal(raw, &er); err == nil && er.Error != "" {
		se.Message = er.Error
	} else {
		se.Message = strings.TrimSpace(string(raw))
	}
	return se
}
