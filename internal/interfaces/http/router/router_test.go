package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"z-novel-batch/internal/application/batch"
	"z-novel-batch/internal/application/chapter"
	"z-novel-batch/internal/config"
	"z-novel-batch/internal/domain/entity"
	"z-novel-batch/internal/interfaces/http/handler"
	apperrors "z-novel-batch/pkg/errors"
)

type stubBackend struct {
	mu          sync.Mutex
	maxChapter  int
	progressErr error
	healthErr   error
	gate        chan struct{}
	entered     chan struct{} // gate 非 nil 时，每次 Generate 阻塞前通知
	saved       []int
}

func (s *stubBackend) NovelProgress(_ context.Context, novelID string) (*entity.NovelProgress, error) {
	if s.progressErr != nil {
		return nil, s.progressErr
	}
	return &entity.NovelProgress{NovelID: novelID, MaxChapter: s.maxChapter}, nil
}

func (s *stubBackend) ChapterOutline(context.Context, string, int) (string, error) {
	return "", apperrors.ErrOutlineUnavailable
}

func (s *stubBackend) Generate(ctx context.Context, params entity.GenerationParameters) (*entity.ChapterResult, error) {
	s.mu.Lock()
	gate := s.gate
	entered := s.entered
	s.mu.Unlock()
	if gate != nil {
		if entered != nil {
			entered <- struct{}{}
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &entity.ChapterResult{Content: "正文：" + params.ChapterOutline, WordCount: 42}, nil
}

func (s *stubBackend) SaveChapter(_ context.Context, _ string, _ string, chapterIndex int) (*entity.SavedChapter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, chapterIndex)
	return &entity.SavedChapter{Filename: fmt.Sprintf("chapter_%03d.txt", chapterIndex)}, nil
}

func (s *stubBackend) HealthCheck(context.Context) error {
	return s.healthErr
}

type testServer struct {
	engine     *gin.Engine
	controller *batch.Controller
	backend    *stubBackend
}

func newTestServer(t *testing.T, backend *stubBackend) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	controller := batch.NewController(batch.Deps{
		Inspector: backend,
		Outlines:  backend,
		Generator: backend,
		Persister: backend,
	}, batch.Options{LogLimit: 100, SubscriberBuffer: 64})
	generator := chapter.NewGenerator(backend, backend, controller, controller.Defaults())

	r := New(&config.Config{App: config.AppConfig{Name: "z-novel-batch"}}, &Handlers{
		Health:  handler.NewHealthHandler(backend, nil, "test"),
		Batch:   handler.NewBatchHandler(controller),
		Chapter: handler.NewChapterHandler(generator),
		Novel:   handler.NewNovelHandler(controller, nil),
	}, nil)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = controller.Shutdown(ctx)
	})
	return &testServer{engine: r.Engine(), controller: controller, backend: backend}
}

func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.controller.Wait(ctx); err != nil {
		t.Fatalf("run did not finish: %v", err)
	}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		ErrorCode string `json:"error_code"`
		Details   string `json:"details"`
	} `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, data any) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	if data != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, data); err != nil {
			t.Fatalf("decode data: %v", err)
		}
	}
	return env
}

func TestStartBatch_RunsToCompletion(t *testing.T) {
	s := newTestServer(t, &stubBackend{maxChapter: 4})

	rec := s.do(http.MethodPost, "/v1/batches", map[string]any{
		"novel_id": "n1", "template_id": "t1", "chapter_count": 2, "use_memory": false,
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var started struct {
		RunID        string `json:"run_id"`
		StartChapter int    `json:"start_chapter"`
		Running      bool   `json:"running"`
	}
	decode(t, rec, &started)
	if started.RunID == "" || started.StartChapter != 5 {
		t.Fatalf("unexpected start response: %+v", started)
	}

	s.wait(t)

	rec = s.do(http.MethodGet, "/v1/batches/current", nil)
	var current struct {
		Status         string  `json:"status"`
		CurrentChapter int     `json:"current_chapter"`
		Percent        float64 `json:"percent"`
	}
	decode(t, rec, &current)
	if current.Status != "completed" || current.CurrentChapter != 2 || current.Percent != 100 {
		t.Fatalf("unexpected snapshot: %+v", current)
	}
	if got := s.backend.saved; len(got) != 2 || got[0] != 5 || got[1] != 6 {
		t.Fatalf("unexpected saved chapters: %v", got)
	}
}

func TestStartBatch_Errors(t *testing.T) {
	tests := []struct {
		name     string
		backend  *stubBackend
		body     any
		wantCode int
		wantErr  apperrors.ErrorCode
	}{
		{
			name:     "missing novel",
			backend:  &stubBackend{},
			body:     map[string]any{"template_id": "t1", "chapter_count": 1},
			wantCode: http.StatusBadRequest,
			wantErr:  apperrors.CodeInvalidParam,
		},
		{
			name:     "zero chapters",
			backend:  &stubBackend{},
			body:     map[string]any{"novel_id": "n1", "template_id": "t1", "chapter_count": 0},
			wantCode: http.StatusBadRequest,
			wantErr:  apperrors.CodeInvalidParam,
		},
		{
			name:     "progress query failure",
			backend:  &stubBackend{progressErr: errors.New("connection refused")},
			body:     map[string]any{"novel_id": "n1", "template_id": "t1", "chapter_count": 1},
			wantCode: http.StatusBadGateway,
			wantErr:  apperrors.CodeProgressQueryFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, tt.backend)
			rec := s.do(http.MethodPost, "/v1/batches", tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d: %s", tt.wantCode, rec.Code, rec.Body.String())
			}
			env := decode(t, rec, nil)
			if env.Error == nil || env.Error.ErrorCode != string(tt.wantErr) {
				t.Fatalf("unexpected error body: %s", rec.Body.String())
			}
		})
	}
}

func TestStartBatch_ConflictWhileRunning(t *testing.T) {
	backend := &stubBackend{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	s := newTestServer(t, backend)

	body := map[string]any{"novel_id": "n1", "template_id": "t1", "chapter_count": 1}
	if rec := s.do(http.MethodPost, "/v1/batches", body); rec.Code != http.StatusAccepted {
		t.Fatalf("first start: %d %s", rec.Code, rec.Body.String())
	}
	select {
	case <-backend.entered:
	case <-time.After(5 * time.Second):
		t.Fatalf("first chapter did not start")
	}

	rec := s.do(http.MethodPost, "/v1/batches", body)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}

	// 批量运行期间同一小说的单章生成被拒绝
	rec = s.do(http.MethodPost, "/v1/chapters/generate", map[string]any{
		"novel_id": "n1", "template_id": "t1", "chapter_outline": "第3章 相遇",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for single generation, got %d", rec.Code)
	}

	rec = s.do(http.MethodDelete, "/v1/batches/current", nil)
	var cancelled struct {
		Cancelled bool `json:"cancelled"`
	}
	decode(t, rec, &cancelled)
	if !cancelled.Cancelled {
		t.Fatalf("expected cancel to be accepted: %s", rec.Body.String())
	}

	close(backend.gate)
	s.wait(t)

	rec = s.do(http.MethodGet, "/v1/batches/current", nil)
	var current struct {
		Status         string `json:"status"`
		CurrentChapter int    `json:"current_chapter"`
	}
	decode(t, rec, &current)
	if current.Status != "completed" || current.CurrentChapter != 1 {
		t.Fatalf("chapter in flight should finish the run, got %q after %d chapters", current.Status, current.CurrentChapter)
	}
}

func TestCurrentEndpoints_WithoutRun(t *testing.T) {
	s := newTestServer(t, &stubBackend{})

	for _, path := range []string{"/v1/batches/current", "/v1/batches/current/logs", "/v1/batches/current/events"} {
		rec := s.do(http.MethodGet, path, nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", path, rec.Code)
		}
	}

	rec := s.do(http.MethodDelete, "/v1/batches/current", nil)
	var cancelled struct {
		Cancelled bool `json:"cancelled"`
	}
	decode(t, rec, &cancelled)
	if rec.Code != http.StatusOK || cancelled.Cancelled {
		t.Fatalf("expected no-op cancel, got %d %s", rec.Code, rec.Body.String())
	}

	rec = s.do(http.MethodGet, "/v1/batches/history", nil)
	var history struct {
		Runs []json.RawMessage `json:"runs"`
	}
	decode(t, rec, &history)
	if rec.Code != http.StatusOK || len(history.Runs) != 0 {
		t.Fatalf("expected empty history, got %s", rec.Body.String())
	}
}

func TestListLogs_Since(t *testing.T) {
	s := newTestServer(t, &stubBackend{maxChapter: 0})
	s.do(http.MethodPost, "/v1/batches", map[string]any{"novel_id": "n1", "template_id": "t1", "chapter_count": 1})
	s.wait(t)

	rec := s.do(http.MethodGet, "/v1/batches/current/logs", nil)
	var all struct {
		Logs    []entity.LogEntry `json:"logs"`
		LastSeq int64             `json:"last_seq"`
	}
	decode(t, rec, &all)
	if len(all.Logs) < 3 || all.LastSeq != all.Logs[len(all.Logs)-1].Seq {
		t.Fatalf("unexpected logs: %+v", all)
	}

	rec = s.do(http.MethodGet, fmt.Sprintf("/v1/batches/current/logs?since=%d", all.LastSeq-1), nil)
	var tail struct {
		Logs []entity.LogEntry `json:"logs"`
	}
	decode(t, rec, &tail)
	if len(tail.Logs) != 1 || tail.Logs[0].Seq != all.LastSeq {
		t.Fatalf("expected only the last entry, got %+v", tail.Logs)
	}

	rec = s.do(http.MethodGet, "/v1/batches/"+all.Logs[0].RunID+"/logs", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("run logs: %d %s", rec.Code, rec.Body.String())
	}
}

func TestStreamEvents_FinishedRunReplaysAndCloses(t *testing.T) {
	s := newTestServer(t, &stubBackend{maxChapter: 1})
	s.do(http.MethodPost, "/v1/batches", map[string]any{"novel_id": "n1", "template_id": "t1", "chapter_count": 1})
	s.wait(t)

	rec := s.do(http.MethodGet, "/v1/batches/current/events", nil)
	body := rec.Body.String()
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("unexpected content type %q", ct)
	}
	for _, want := range []string{"event:progress", "event:log", "id:1\n", "event:finished"} {
		if !strings.Contains(body, want) {
			t.Fatalf("stream missing %q:\n%s", want, body)
		}
	}

	// Last-Event-ID 之前的日志不再补发
	req := httptest.NewRequest(http.MethodGet, "/v1/batches/current/events", nil)
	req.Header.Set("Last-Event-ID", "1")
	resumed := httptest.NewRecorder()
	s.engine.ServeHTTP(resumed, req)
	if strings.Contains(resumed.Body.String(), "id:1\n") || !strings.Contains(resumed.Body.String(), "id:2\n") {
		t.Fatalf("unexpected resumed stream:\n%s", resumed.Body.String())
	}
}

func TestGenerateChapter(t *testing.T) {
	s := newTestServer(t, &stubBackend{})

	rec := s.do(http.MethodPost, "/v1/chapters/generate", map[string]any{
		"novel_id": "n1", "template_id": "t1", "chapter_outline": "第12章 决战",
	})
	var result struct {
		ChapterIndex   int  `json:"chapter_index"`
		IndexDefaulted bool `json:"index_defaulted"`
		Saved          *struct {
			Filename string `json:"filename"`
		} `json:"saved"`
	}
	decode(t, rec, &result)
	if rec.Code != http.StatusOK || result.ChapterIndex != 12 || result.IndexDefaulted || result.Saved == nil {
		t.Fatalf("unexpected result %d: %s", rec.Code, rec.Body.String())
	}

	rec = s.do(http.MethodPost, "/v1/chapters/generate", map[string]any{"template_id": "t1"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without outline, got %d", rec.Code)
	}
}

func TestExtractChapterIndex(t *testing.T) {
	s := newTestServer(t, &stubBackend{})

	tests := []struct {
		text      string
		wantIndex int
		wantFound bool
	}{
		{"【第7章】风起", 7, true},
		{"Chapter 15: The End", 15, true},
		{"没有章节号", 0, false},
	}
	for _, tt := range tests {
		rec := s.do(http.MethodPost, "/v1/outlines/chapter-index", map[string]any{"text": tt.text})
		var got struct {
			ChapterIndex int  `json:"chapter_index"`
			Found        bool `json:"found"`
		}
		decode(t, rec, &got)
		if got.ChapterIndex != tt.wantIndex || got.Found != tt.wantFound {
			t.Fatalf("%q: got %+v", tt.text, got)
		}
	}
}

func TestNovelEndpoints(t *testing.T) {
	s := newTestServer(t, &stubBackend{maxChapter: 9})

	rec := s.do(http.MethodGet, "/v1/novels/n1/progress", nil)
	var progress struct {
		MaxChapter  int `json:"max_chapter"`
		NextChapter int `json:"next_chapter"`
	}
	decode(t, rec, &progress)
	if progress.MaxChapter != 9 || progress.NextChapter != 10 {
		t.Fatalf("unexpected progress: %s", rec.Body.String())
	}

	rec = s.do(http.MethodDelete, "/v1/novels/n1/outlines/3/cache", nil)
	var inv struct {
		Invalidated bool `json:"invalidated"`
	}
	decode(t, rec, &inv)
	if rec.Code != http.StatusOK || inv.Invalidated {
		t.Fatalf("expected no-op without cache, got %d %s", rec.Code, rec.Body.String())
	}

	rec = s.do(http.MethodDelete, "/v1/novels/n1/outlines/zero/cache", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad chapter, got %d", rec.Code)
	}
}

func TestReady(t *testing.T) {
	backend := &stubBackend{}
	s := newTestServer(t, backend)

	rec := s.do(http.MethodGet, "/ready", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"disabled"`) {
		t.Fatalf("expected ready with redis disabled, got %d %s", rec.Code, rec.Body.String())
	}

	backend.healthErr = errors.New("backend down")
	rec = s.do(http.MethodGet, "/ready", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
