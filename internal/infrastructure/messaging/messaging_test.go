package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"z-novel-batch/internal/domain/entity"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestProducer_PublishRunEvent(t *testing.T) {
	rdb := newTestRedis(t)
	p := NewProducer(rdb, "", 100)
	ctx := context.Background()

	job := entity.NewBatchJob("run-1", "n1", "t1", 2, entity.GenerationConfig{})
	events := []*entity.RunEvent{
		{Type: entity.RunEventLog, Log: &entity.LogEntry{Seq: 1, RunID: "run-1", Level: entity.LogWarning, Message: "hi"}},
		{Type: entity.RunEventProgress, Progress: &entity.ProgressEvent{RunID: "run-1", Current: 1, Total: 2, Percent: 50}},
		{Type: entity.RunEventFinished, Job: job},
	}
	for _, ev := range events {
		if err := p.PublishRunEvent(ctx, ev); err != nil {
			t.Fatalf("PublishRunEvent error: %v", err)
		}
	}

	msgs, err := rdb.XRange(ctx, string(StreamBatchEvents), "-", "+").Result()
	if err != nil {
		t.Fatalf("XRange error: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 stream entries, got %d", len(msgs))
	}

	wantTypes := []string{TypeRunLog, TypeRunProgress, TypeRunFinished}
	for i, xm := range msgs {
		var msg Message
		if err := json.Unmarshal([]byte(xm.Values["data"].(string)), &msg); err != nil {
			t.Fatalf("decode entry %d: %v", i, err)
		}
		if msg.Type != wantTypes[i] || msg.RunID != "run-1" {
			t.Fatalf("entry %d: unexpected envelope %+v", i, msg)
		}
		if i == 0 && msg.GetMetadata("level") != "warning" {
			t.Fatalf("expected level metadata on log event")
		}
		if i == 2 {
			var ev entity.RunEvent
			if err := msg.UnmarshalPayload(&ev); err != nil || ev.Job == nil || ev.Job.NovelID != "n1" || msg.NovelID != "n1" {
				t.Fatalf("unexpected finished payload: %+v, %v", ev, err)
			}
		}
	}
}

func TestTailer_ReadsFromBeginningUntilHandlerStops(t *testing.T) {
	rdb := newTestRedis(t)
	p := NewProducer(rdb, "stream:test", 100)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i := 1; i <= 3; i++ {
		ev := &entity.RunEvent{Type: entity.RunEventProgress, Progress: &entity.ProgressEvent{RunID: "run-1", Current: i, Total: 3}}
		if err := p.PublishRunEvent(ctx, ev); err != nil {
			t.Fatalf("PublishRunEvent error: %v", err)
		}
	}
	// 格式错误的条目被跳过
	rdb.XAdd(ctx, &redis.XAddArgs{Stream: "stream:test", Values: map[string]interface{}{"other": "x"}})
	_ = p.PublishRunEvent(ctx, &entity.RunEvent{Type: entity.RunEventFinished, Job: entity.NewBatchJob("run-1", "n1", "t1", 3, entity.GenerationConfig{})})

	stop := errors.New("stop")
	var seen []string
	tailer := NewTailer(rdb, TailerConfig{Stream: "stream:test", BlockTimeout: 100 * time.Millisecond})
	err := tailer.Run(ctx, "0", func(_ context.Context, msg *Message) error {
		seen = append(seen, msg.Type)
		if msg.Type == TypeRunFinished {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) {
		t.Fatalf("expected handler error to stop the tailer, got %v", err)
	}
	if len(seen) != 4 || seen[3] != TypeRunFinished {
		t.Fatalf("unexpected messages: %v", seen)
	}
}

func TestTailer_StopsOnContextCancel(t *testing.T) {
	rdb := newTestRedis(t)
	tailer := NewTailer(rdb, TailerConfig{BlockTimeout: 50 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- tailer.Run(ctx, "$", func(context.Context, *Message) error { return nil })
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil on cancel, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("tailer did not stop after context cancel")
	}
}
