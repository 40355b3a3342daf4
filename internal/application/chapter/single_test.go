package chapter

import (
	"context"
	"errors"
	"testing"

	"z-novel-batch/internal/domain/entity"
	apperrors "z-novel-batch/pkg/errors"
)

type stubBackend struct {
	genErr  error
	saveErr error

	params []entity.GenerationParameters
	saved  []int
}

func (s *stubBackend) Generate(_ context.Context, params entity.GenerationParameters) (*entity.ChapterResult, error) {
	s.params = append(s.params, params)
	if s.genErr != nil {
		return nil, s.genErr
	}
	return &entity.ChapterResult{Content: "正文内容", WordCount: 4}, nil
}

func (s *stubBackend) SaveChapter(_ context.Context, _ string, novelID string, chapterIndex int) (*entity.SavedChapter, error) {
	if s.saveErr != nil {
		return nil, s.saveErr
	}
	s.saved = append(s.saved, chapterIndex)
	return &entity.SavedChapter{Filename: novelID + "_chapter.txt"}, nil
}

type stubBusy struct {
	novel string
}

func (b stubBusy) ActiveNovel() (string, bool) {
	return b.novel, b.novel != ""
}

func TestGenerateSingle_ChapterIndexResolution(t *testing.T) {
	tests := []struct {
		name          string
		explicit      int
		outline       string
		wantIndex     int
		wantDefaulted bool
	}{
		{"explicit wins", 7, "第3章 试炼", 7, false},
		{"extracted from outline", 0, "第3章 试炼", 3, false},
		{"english heading", 0, "Chapter 12: the gate", 12, false},
		{"defaults to one", 0, "主角进入秘境", 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &stubBackend{}
			g := NewGenerator(b, b, nil, entity.GenerationConfig{})

			res, err := g.GenerateSingle(context.Background(), Request{
				NovelID:      "n1",
				TemplateID:   "t1",
				Outline:      tt.outline,
				ChapterIndex: tt.explicit,
			})
			if err != nil {
				t.Fatalf("GenerateSingle error: %v", err)
			}
			if res.ChapterIndex != tt.wantIndex || res.IndexDefaulted != tt.wantDefaulted {
				t.Fatalf("expected index %d defaulted=%v, got %d defaulted=%v",
					tt.wantIndex, tt.wantDefaulted, res.ChapterIndex, res.IndexDefaulted)
			}
			if len(b.saved) != 1 || b.saved[0] != tt.wantIndex {
				t.Fatalf("expected save at %d, got %v", tt.wantIndex, b.saved)
			}
		})
	}
}

func TestGenerateSingle_WithoutNovelUsesDefaultSession(t *testing.T) {
	b := &stubBackend{}
	g := NewGenerator(b, b, nil, entity.GenerationConfig{ModelName: "deepseek_chat"})

	res, err := g.GenerateSingle(context.Background(), Request{TemplateID: "t1", Outline: "第2章"})
	if err != nil {
		t.Fatalf("GenerateSingle error: %v", err)
	}
	if b.params[0].SessionID != entity.DefaultSessionID || b.params[0].NovelID != "" {
		t.Fatalf("expected default session, got %+v", b.params[0])
	}
	if len(b.saved) != 0 || res.Saved != nil {
		t.Fatalf("chapter without novel id must not be saved")
	}
}

func TestGenerateSingle_Validation(t *testing.T) {
	b := &stubBackend{}
	g := NewGenerator(b, b, nil, entity.GenerationConfig{})

	for _, req := range []Request{
		{Outline: "第1章"},
		{TemplateID: "t1", Outline: "   "},
		{TemplateID: "t1", Outline: "第1章", ChapterIndex: -1},
	} {
		if _, err := g.GenerateSingle(context.Background(), req); !errors.Is(err, apperrors.ErrInvalidParam) {
			t.Fatalf("expected ErrInvalidParam for %+v, got %v", req, err)
		}
	}
	if len(b.params) != 0 {
		t.Fatalf("invalid requests must not reach the backend")
	}
}

func TestGenerateSingle_RefusedWhileBatchRunsSameNovel(t *testing.T) {
	b := &stubBackend{}
	g := NewGenerator(b, b, stubBusy{novel: "n1"}, entity.GenerationConfig{})

	_, err := g.GenerateSingle(context.Background(), Request{NovelID: "n1", TemplateID: "t1", Outline: "第1章"})
	if !errors.Is(err, apperrors.ErrNovelBusy) {
		t.Fatalf("expected ErrNovelBusy, got %v", err)
	}

	if _, err := g.GenerateSingle(context.Background(), Request{NovelID: "n2", TemplateID: "t1", Outline: "第1章"}); err != nil {
		t.Fatalf("other novels should not be blocked: %v", err)
	}
}

func TestGenerateSingle_Failures(t *testing.T) {
	b := &stubBackend{genErr: errors.New("timeout")}
	g := NewGenerator(b, b, nil, entity.GenerationConfig{})

	_, err := g.GenerateSingle(context.Background(), Request{NovelID: "n1", TemplateID: "t1", Outline: "第1章"})
	if !errors.Is(err, apperrors.ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}

	b = &stubBackend{saveErr: errors.New("disk full")}
	g = NewGenerator(b, b, nil, entity.GenerationConfig{})
	res, err := g.GenerateSingle(context.Background(), Request{NovelID: "n1", TemplateID: "t1", Outline: "第1章"})
	if err != nil {
		t.Fatalf("save failure must not fail generation: %v", err)
	}
	if res.Content == "" || res.SaveError != "disk full" || res.Saved != nil {
		t.Fatalf("unexpected result: %+v", res)
	}
}
