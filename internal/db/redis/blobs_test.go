package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"

	"github.com/kailas-cloud/vecrag/internal/db"
)

func TestGet(t *testing.T) {
	s, c := newMockStore(t)
	gomock.InOrder(
		c.EXPECT().Do(gomock.Any(), mock.Match("GET", "emb:abc")).Return(mock.Result(mock.RedisString("payload"))),
		c.EXPECT().Do(gomock.Any(), mock.Match("GET", "emb:gone")).Return(mock.Result(mock.RedisNil())),
		c.EXPECT().Do(gomock.Any(), mock.Match("GET", "emb:slow")).Return(mock.ErrorResult(context.DeadlineExceeded)),
	)
	ctx := context.Background()

	data, err := s.Get(ctx, "emb:abc")
	if err != nil || string(data) != "payload" {
		t.Fatalf("hit: data=%q err=%v", data, err)
	}
	if _, err := s.Get(ctx, "emb:gone"); !errors.Is(err, db.ErrKeyNotFound) {
		t.Fatalf("miss: expected ErrKeyNotFound, got %v", err)
	}
	_, err = s.Get(ctx, "emb:slow")
	var dbErr *db.Error
	if !errors.As(err, &dbErr) || dbErr.Op != db.OpCacheGet {
		t.Fatalf("failure: expected cache_get db.Error, got %v", err)
	}
}

func TestSetWithTTL(t *testing.T) {
	tests := []struct {
		name string
		ttl  time.Duration
		cmd  []string
	}{
		{"expiring", time.Minute, []string{"SET", "k", "v", "EX", "60"}},
		{"persistent", 0, []string{"SET", "k", "v"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, c := newMockStore(t)
			c.EXPECT().
				Do(gomock.Any(), mock.Match(tc.cmd...)).
				Return(mock.Result(mock.RedisString("OK")))

			if err := s.SetWithTTL(context.Background(), "k", []byte("v"), tc.ttl); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
