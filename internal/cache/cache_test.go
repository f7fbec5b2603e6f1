package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestKey(t *testing.T) {
	a := Key("container", "%%45|abc")
	if a != Key("container", "%%45|abc") {
		t.Errorf("key is not stable")
	}
	if a == Key("builder", "%%45|abc") {
		t.Errorf("different presets must not share a key")
	}
	if Key("ab", "c") == Key("a", "bc") {
		t.Errorf("part boundaries must be part of the key")
	}
	if len(a) != 64 {
		t.Errorf("expected hex sha256, got %q", a)
	}
}

func TestNop(t *testing.T) {
	var c Cache = Nop{}
	if err := c.Set(context.Background(), "k", []byte("v"), time.Minute); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := c.Get(context.Background(), "k"); ok || err != nil {
		t.Errorf("nop cache must always miss, got ok=%v err=%v", ok, err)
	}
}

func TestRedisCacheUnavailable(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	var c Cache = NewRedisCache(rdb, "deckshot:")
	if _, ok, err := c.Get(context.Background(), "k"); err == nil || ok {
		t.Errorf("expected a connection error, got ok=%v err=%v", ok, err)
	}
	if err := c.Set(context.Background(), "k", []byte("v"), time.Minute); err == nil {
		t.Errorf("expected a connection error")
	}
}
