package queue

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func exerciseQueue(t *testing.T, q Queue) {
	ctx := context.Background()

	job, err := q.Take(ctx)
	if err != nil || job != nil {
		t.Fatalf("Take on empty queue = %v, %v; want nil, nil", job, err)
	}

	for _, id := range []string{"g1", "g2", "g3"} {
		if err := q.Enqueue(ctx, Job{GameID: id}); err != nil {
			t.Fatalf("Enqueue %s: %v", id, err)
		}
	}
	for _, want := range []string{"g1", "g2", "g3"} {
		job, err := q.Take(ctx)
		if err != nil {
			t.Fatalf("Take: %v", err)
		}
		if job == nil || job.GameID != want {
			t.Fatalf("Take = %+v, want %s", job, want)
		}
	}
	if job, _ := q.Take(ctx); job != nil {
		t.Errorf("queue not drained: %+v", job)
	}
}

func TestMemoryQueue(t *testing.T) {
	q := NewMemoryQueue()
	exerciseQueue(t, q)
	if q.Len() != 0 {
		t.Errorf("Len = %d", q.Len())
	}
}

func TestMemoryQueue_Cancelled(t *testing.T) {
	q := NewMemoryQueue()
	q.Enqueue(context.Background(), Job{GameID: "g1"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.Take(ctx); err == nil {
		t.Fatal("expected ctx error")
	}
	if q.Len() != 1 {
		t.Errorf("job lost on cancelled take")
	}
}

func TestRedisQueue(t *testing.T) {
	url := os.Getenv("CHESSANALYZER_TEST_REDIS_URL")
	if url == "" {
		t.Skip("CHESSANALYZER_TEST_REDIS_URL not set")
	}
	key := "chessanalyzer:test:" + time.Now().Format("150405.000000")
	q, err := ConnectRedis(context.Background(), url, "", key, zerolog.Nop())
	if err != nil {
		t.Fatalf("ConnectRedis: %v", err)
	}
	defer func() {
		q.client.Del(context.Background(), key)
		q.Close()
	}()
	exerciseQueue(t, q)
}
