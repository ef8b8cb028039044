package telegram

import (
	"testing"

	coreconfig "github.com/ltzehan/thermobot/core/config"
)

func TestDefaultMiddlewares(t *testing.T) {
	if got := DefaultMiddlewares(nil, nil); len(got) != 1 || got[0].Name != "recover" {
		t.Fatalf("unexpected chain %+v", got)
	}
	cfg := &coreconfig.Config{RateLimit: coreconfig.RateLimitConfig{IntervalMS: 500, ExcludeUpdates: []string{"edited_message"}}}
	got := DefaultMiddlewares(cfg, nil)
	if len(got) != 2 || got[1].Name != "rate_limit" {
		t.Fatalf("unexpected chain %+v", got)
	}
}
