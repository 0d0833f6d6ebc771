package redis

import (
	"testing"

	"github.com/lucasmedrano/communitas-backend/pkg/config"
)

func TestOptionsFromConfigRequiresTarget(t *testing.T) {
	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatal("expected error without url or address")
	}
}

func TestOptionsFromConfigParsesURL(t *testing.T) {
	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://:pass@localhost:6380/2"})
	if err != nil {
		t.Fatalf("optionsFromConfig: %v", err)
	}
	if opts.Addr != "localhost:6380" {
		t.Fatalf("unexpected addr %q", opts.Addr)
	}
	if opts.DB != 2 {
		t.Fatalf("unexpected db %d", opts.DB)
	}
}

func TestOptionsFromConfigFallsBackToAddress(t *testing.T) {
	opts, err := optionsFromConfig(config.RedisConfig{Address: "localhost:6379", DB: 1, PoolSize: 5})
	if err != nil {
		t.Fatalf("optionsFromConfig: %v", err)
	}
	if opts.Addr != "localhost:6379" || opts.DB != 1 || opts.PoolSize != 5 {
		t.Fatalf("address options not applied: %+v", opts)
	}
}

func TestKeyBuilders(t *testing.T) {
	c := &Client{}
	if got := c.IdempotencyKey("stripe-webhook", "evt_1"); got != "cmt:idempotency:stripe-webhook:evt_1" {
		t.Fatalf("unexpected idempotency key %q", got)
	}
	if got := c.LockKey("scheduler"); got != "cmt:lock:scheduler" {
		t.Fatalf("unexpected lock key %q", got)
	}
	if got := c.IdempotencyKey("", " id "); got != "cmt:idempotency:id" {
		t.Fatalf("blank parts must be skipped, got %q", got)
	}
}
