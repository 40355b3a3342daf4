package novelapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"z-novel-batch/internal/config"
	"z-novel-batch/internal/domain/entity"
	apperrors "z-novel-batch/pkg/errors"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(&config.BackendConfig{
		BaseURL:         srv.URL + "/",
		Timeout:         5 * time.Second,
		GenerateTimeout: 5 * time.Second,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_NovelProgress(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/novels/n%201/info" && r.URL.Path != "/api/novels/n 1/info" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"novel_id": "n 1",
			"state":    map[string]any{"latest_chapter": 7},
			"chapters": map[string]any{"total_chapters": 8, "latest_chapter_file": 9},
			"memory":   map[string]any{"total_messages": 30, "total_chunks": 4},
			"world":    map[string]any{"has_world_bible": true},
			"summary":  map[string]any{"sync_status": "不同步"},
		})
	}))

	p, err := c.NovelProgress(context.Background(), "n 1")
	if err != nil {
		t.Fatalf("NovelProgress error: %v", err)
	}
	if p.MaxChapter != 9 || p.NextChapter() != 10 {
		t.Fatalf("expected max chapter 9, got %+v", p)
	}
	if p.TotalChapterFiles != 8 || p.StateChapter != 7 || p.MemoryChunks != 4 || p.MemoryMessages != 30 {
		t.Fatalf("unexpected progress fields: %+v", p)
	}
	if !p.HasWorldBible || p.SyncStatus != "不同步" {
		t.Fatalf("unexpected world/sync fields: %+v", p)
	}
}

func TestClient_NovelProgressMissingChaptersIsZero(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"novel_id": "n1"})
	}))

	p, err := c.NovelProgress(context.Background(), "n1")
	if err != nil {
		t.Fatalf("NovelProgress error: %v", err)
	}
	if p.MaxChapter != 0 || p.NextChapter() != 1 {
		t.Fatalf("expected first chapter to be 1, got %+v", p)
	}
}

func TestClient_NovelProgressErrorStatus(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "state file corrupt"})
	}))

	_, err := c.NovelProgress(context.Background(), "n1")
	if !errors.Is(err, apperrors.ErrProgressQueryFailed) {
		t.Fatalf("expected ErrProgressQueryFailed, got %v", err)
	}
	var se *statusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusInternalServerError || se.Message != "state file corrupt" {
		t.Fatalf("expected wrapped status error, got %#v", se)
	}
}

func TestClient_ChapterOutline(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req readOutlineRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		switch req.ChapterIndex {
		case 1:
			writeJSON(w, http.StatusOK, map[string]any{"outline": "第1章 开端", "novel_id": req.NovelID})
		case 2:
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "outline file missing", "outline": nil})
		default:
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "io error"})
		}
	}))
	ctx := context.Background()

	text, err := c.ChapterOutline(ctx, "n1", 1)
	if err != nil || text != "第1章 开端" {
		t.Fatalf("expected outline, got %q, %v", text, err)
	}

	_, err = c.ChapterOutline(ctx, "n1", 2)
	if !errors.Is(err, apperrors.ErrOutlineUnavailable) {
		t.Fatalf("404 should map to ErrOutlineUnavailable, got %v", err)
	}

	_, err = c.ChapterOutline(ctx, "n1", 3)
	if err == nil || errors.Is(err, apperrors.ErrOutlineUnavailable) {
		t.Fatalf("500 should be a read error, got %v", err)
	}
	if appErr := apperrors.AsAppError(err); appErr.Code != apperrors.CodeBackendError {
		t.Fatalf("expected CodeBackendError, got %s", appErr.Code)
	}
}

func TestClient_Generate(t *testing.T) {
	var got entity.GenerationParameters
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		writeJSON(w, http.StatusOK, map[string]any{"content": "夜色沉沉", "template_used": "玄幻"})
	}))

	params := entity.NewGenerationParameters("n1", "t1", "第3章", entity.GenerationConfig{ModelName: "m", UseState: true})
	res, err := c.Generate(context.Background(), params)
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if res.Content != "夜色沉沉" || res.WordCount != 4 {
		t.Fatalf("expected rune word count fallback, got %+v", res)
	}
	if got.TemplateID != "t1" || got.ChapterOutline != "第3章" || got.SessionID != "n1" || !got.UseState || got.RecentCount != entity.DefaultRecentCount {
		t.Fatalf("unexpected wire parameters: %+v", got)
	}
}

func TestClient_GenerateErrorBody(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "模版不存在: t9"})
	}))

	_, err := c.Generate(context.Background(), entity.GenerationParameters{TemplateID: "t9"})
	if !errors.Is(err, apperrors.ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}
	var se *statusError
	if !errors.As(err, &se) || se.Message != "模版不存在: t9" {
		t.Fatalf("expected backend message to be preserved, got %v", err)
	}
}

func TestClient_SaveChapter(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req saveChapterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if !req.AutoSave || req.ChapterIndex != 12 || req.NovelID != "n1" || req.Content != "正文" {
			t.Errorf("unexpected save request: %+v", req)
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "filename": "n1_chapter_012.txt", "word_count": 2})
	}))

	saved, err := c.SaveChapter(context.Background(), "正文", "n1", 12)
	if err != nil {
		t.Fatalf("SaveChapter error: %v", err)
	}
	if saved.Filename != "n1_chapter_012.txt" || saved.WordCount != 2 {
		t.Fatalf("unexpected saved chapter: %+v", saved)
	}
}

func TestClient_SaveChapterFailure(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "章节内容不能为空"})
	}))

	_, err := c.SaveChapter(context.Background(), "", "n1", 1)
	if !errors.Is(err, apperrors.ErrPersistenceFailed) {
		t.Fatalf("expected ErrPersistenceFailed, got %v", err)
	}
}

func TestClient_HealthCheck(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/health" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if healthy.Load() {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	if err := c.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck error: %v", err)
	}
	healthy.Store(false)
	if err := c.HealthCheck(context.Background()); err == nil {
		t.Fatalf("expected HealthCheck to fail on 503")
	}
}
