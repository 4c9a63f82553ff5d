package callstore

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb)
}

func TestRedisStore_PutThenGetRoundTrips(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	rec := Record{CallSID: "CA1", Status: "queued", DurationSeconds: 0, ConversationID: "conv-1"}
	if err := s.Put(ctx, rec); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	got, err := s.Get(ctx, "CA1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != rec {
		t.Fatalf("expected %+v, got %+v", rec, got)
	}
}

func TestRedisStore_GetUnknownSID(t *testing.T) {
	s := newTestRedisStore(t)

	_, err := s.Get(context.Background(), "CAmissing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisStore_UpdateStatusOverwritesStatusAndDuration(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, Record{CallSID: "CA1", Status: "queued", ConversationID: "conv-1"}); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		ok, err := s.UpdateStatus(ctx, "CA1", "completed", 95)
		if err != nil {
			t.Fatalf("update failed: %v", err)
		}
		if !ok {
			t.Fatalf("expected update to hit the record")
		}
	}

	got, err := s.Get(ctx, "CA1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != "completed" || got.DurationSeconds != 95 {
		t.Fatalf("unexpected record after repeated callbacks: %+v", got)
	}
	if got.ConversationID != "conv-1" {
		t.Fatalf("update must not clear conversation id, got %+v", got)
	}
}

func TestRedisStore_UpdateStatusUnknownSIDIsNotAnError(t *testing.T) {
	s := newTestRedisStore(t)

	ok, err := s.UpdateStatus(context.Background(), "CAmissing", "completed", 10)
	if err != nil {
		t.Fatalf("expected no error for unknown sid, got %v", err)
	}
	if ok {
		t.Fatalf("expected no record to be updated")
	}
}

func TestRedisStore_UpdateStatusDoesNotResurrectDeletedRecord(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, Record{CallSID: "CA1", Status: "in-progress"}); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := s.Delete(ctx, "CA1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	// A late provider callback racing endCall's delete must not re-create
	// the record.
	ok, err := s.UpdateStatus(ctx, "CA1", "completed", 42)
	if err != nil {
		t.Fatalf("update after delete failed: %v", err)
	}
	if ok {
		t.Fatalf("update after delete must report no record")
	}
	if _, err := s.Get(ctx, "CA1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestRedisStore_DeleteIsSafeWhenAbsent(t *testing.T) {
	s := newTestRedisStore(t)

	if err := s.Delete(context.Background(), "CAmissing"); err != nil {
		t.Fatalf("delete of absent sid must be a no-op, got %v", err)
	}
}
