package outline

import (
	"strings"
	"testing"
)

func TestExtractChapterIndex(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		want   int
		wantOK bool
	}{
		{"bracketed", "【第7章】开场", 7, true},
		{"plain chinese", "本章为第12章，主角突破", 12, true},
		{"chapter underscore", "chapter_12 begins", 12, true},
		{"chapter space upper", "CHAPTER 3: The Return", 3, true},
		{"zhangjie", "章节_5 细纲", 5, true},
		{"no marker", "主角进入秘境，遭遇强敌", 0, false},
		{"empty", "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractChapterIndex(tt.text)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ExtractChapterIndex(%q) = (%d, %v), want (%d, %v)", tt.text, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestExtractChapterIndex_FirstPatternWins(t *testing.T) {
	// "第N章" 优先于 "chapter N"，即使后者在文本中更靠前
	got, ok := ExtractChapterIndex("chapter 9 / 第4章")
	if !ok || got != 4 {
		t.Fatalf("expected 4 from the first pattern, got (%d, %v)", got, ok)
	}
}

func TestResolveChapterIndex(t *testing.T) {
	if n, d := ResolveChapterIndex(8, "第3章"); n != 8 || d {
		t.Errorf("explicit index should win, got (%d, %v)", n, d)
	}
	if n, d := ResolveChapterIndex(0, "第3章"); n != 3 || d {
		t.Errorf("expected extracted 3, got (%d, %v)", n, d)
	}
	if n, d := ResolveChapterIndex(0, "没有章节号"); n != 1 || !d {
		t.Errorf("expected default 1, got (%d, %v)", n, d)
	}
}

func TestDefault(t *testing.T) {
	text := Default(15)
	if !strings.HasPrefix(text, "【第15章】") {
		t.Fatalf("default outline should start with the chapter marker, got %q", text)
	}
	if !strings.Contains(text, "目标字数：2800字") {
		t.Errorf("default outline missing target word count: %q", text)
	}
	if n, ok := ExtractChapterIndex(text); !ok || n != 15 {
		t.Errorf("default outline should round-trip its index, got (%d, %v)", n, ok)
	}
}

func TestOrDefault(t *testing.T) {
	if got, used := OrDefault("  \n", 2); !used || got != Default(2) {
		t.Errorf("blank outline should fall back, got used=%v", used)
	}
	if got, used := OrDefault("real outline", 2); used || got != "real outline" {
		t.Errorf("real outline should be kept, got %q used=%v", got, used)
	}
}
