package relaylist

import (
	"testing"
	"time"
)

func TestCacheUpdateAndGet(t *testing.T) {
	c := NewCache()
	now := time.Now()
	list := RelayList{Relays: []Relay{{Hostname: "a"}}}

	c.Update(list, "digest1", now)

	got, digest := c.Get()
	if digest != "digest1" {
		t.Errorf("Digest() = %q, want digest1", digest)
	}
	if len(got.Relays) != 1 {
		t.Fatalf("Get() relays = %d, want 1", len(got.Relays))
	}
	if !c.Timestamp().Equal(now) {
		t.Errorf("Timestamp() = %v, want %v", c.Timestamp(), now)
	}
}

func TestCacheZeroValueBeforeUpdate(t *testing.T) {
	c := NewCache()
	if c.Digest() != "" {
		t.Errorf("Digest() = %q, want empty before first Update", c.Digest())
	}
	if !c.Timestamp().IsZero() {
		t.Error("Timestamp() is not zero before first Update")
	}
}
