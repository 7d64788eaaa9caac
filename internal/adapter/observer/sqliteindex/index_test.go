package sqliteindex

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"aitown/internal/app/ports"
	"aitown/internal/domain/game"
)

func TestIndex_RecordsStepsAndMessages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.sqlite")
	ix, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx := context.Background()
	ix.StepCommitted(ctx, ports.StepSummary{WorldID: "w1", Generation: 1, Ticks: 2, Duration: 3 * time.Millisecond})
	ix.StepCommitted(ctx, ports.StepSummary{
		WorldID:    "w1",
		Generation: 2,
		Ticks:      5,
		Messages: []game.Message{
			{ID: "msg:1", ConversationID: "c:1", Author: "p:1", Text: "hello", Timestamp: 10},
			{ID: "msg:2", ConversationID: "c:1", Author: "p:2", Text: "hi", Timestamp: 12},
		},
	})
	if err := ix.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	ix.StepCommitted(ctx, ports.StepSummary{WorldID: "w1", Generation: 3})

	ix, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer ix.Close()
	steps, err := ix.RecentSteps(ctx, "w1", 10)
	if err != nil {
		t.Fatalf("recent steps: %v", err)
	}
	if len(steps) != 2 || steps[0].Generation != 2 || steps[0].Messages != 2 {
		t.Fatalf("steps mismatch: %+v", steps)
	}
	if steps[1].DurationMicros != 3000 {
		t.Fatalf("duration: got=%d want=3000", steps[1].DurationMicros)
	}
	texts, err := ix.MessagesByAuthor(ctx, "w1", "p:1")
	if err != nil || len(texts) != 1 || texts[0] != "hello" {
		t.Fatalf("messages by author: got=%v err=%v", texts, err)
	}
}

func TestOpen_RejectsEmptyPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestIndex_CloseWhileStepsArrive(t *testing.T) {
	ix, err := Open(filepath.Join(t.TempDir(), "index.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx := context.Background()
	var wg sync.WaitGroup
	start := make(chan struct{})
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			<-start
			for g := 0; g < 200; g++ {
				ix.StepCommitted(ctx, ports.StepSummary{WorldID: "w1", Generation: int64(w*1000 + g)})
			}
		}(w)
	}
	close(start)
	if err := ix.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	wg.Wait()
	ix.StepCommitted(ctx, ports.StepSummary{WorldID: "w1", Generation: 1})
}
