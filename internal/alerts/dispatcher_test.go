package alerts

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/tradewatch/tradewatch/internal/config"
)

type captureSender struct {
	mu    sync.Mutex
	texts []string
}

func (c *captureSender) Send(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, text)
	return nil
}

func (c *captureSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.texts)
}

func TestNotifyDeliversOnce(t *testing.T) {
	sender := &captureSender{}
	d := NewDispatcher(config.AlertsConfig{DedupWindow: time.Minute, RatePerMinute: 30}, sender, zerolog.Nop())

	d.Notify("Reconnect required", "Tenant t1 must re-authorize.")
	require.Equal(t, 1, sender.count())
	require.Contains(t, sender.texts[0], "Reconnect required")
	require.Contains(t, sender.texts[0], "t1")
}

func TestNotifyDeduplicatesWithinWindow(t *testing.T) {
	sender := &captureSender{}
	d := NewDispatcher(config.AlertsConfig{DedupWindow: time.Minute, RatePerMinute: 30}, sender, zerolog.Nop())

	for i := 0; i < 5; i++ {
		d.Notify("Reconnect required", "Tenant t1 must re-authorize.")
	}
	require.Equal(t, 1, sender.count())

	// A different tenant's alert is not a duplicate.
	d.Notify("Reconnect required", "Tenant t2 must re-authorize.")
	require.Equal(t, 2, sender.count())
}

func TestNotifyRateLimits(t *testing.T) {
	sender := &captureSender{}
	d := NewDispatcher(config.AlertsConfig{DedupWindow: time.Minute, RatePerMinute: 3}, sender, zerolog.Nop())

	for i := 0; i < 10; i++ {
		d.Notify("Alert", string(rune('a'+i)))
	}
	require.Equal(t, 3, sender.count())
}

func TestNotifyNilSenderLogsOnly(t *testing.T) {
	d := NewDispatcher(config.AlertsConfig{}, nil, zerolog.Nop())
	// Must not panic.
	d.Notify("Alert", "no transport configured")
}

func TestDedupExpires(t *testing.T) {
	d := newDedupStore(20 * time.Millisecond)

	d.Record("k")
	require.True(t, d.IsDuplicate("k"))

	time.Sleep(30 * time.Millisecond)
	require.False(t, d.IsDuplicate("k"))

	// Recording another key prunes the expired one.
	d.Record("other")
	require.Equal(t, 1, d.Size())
}

func TestThrottlerRefills(t *testing.T) {
	tr := newThrottler(6000) // 100 per second

	drained := 0
	for tr.Allow() {
		drained++
	}
	require.Equal(t, 6000, drained)

	time.Sleep(50 * time.Millisecond)
	require.True(t, tr.Allow())
}
