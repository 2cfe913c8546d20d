package rulefile_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/rulefile"
)

const likeRules = `
rules:
  - type: like
    channels: [in_app, push]
    priority: low
    enable_batching: true
    batch_window: 10m
    max_batch_size: 20
    enable_deduplication: true
    deduplication_window: 30m
    max_per_hour: 20
    max_per_day: 100
  - type: direct_message
    channels: [all]
    priority: urgent
`

func TestParse(t *testing.T) {
	t.Parallel()

	rules, err := rulefile.Parse([]byte(likeRules))
	require.NoError(t, err)
	require.Len(t, rules, 2)

	like := rules[notifications.TypeLike]
	assert.Equal(t, notifications.TypeLike, like.Type)
	assert.Equal(t, notifications.ChannelInApp|notifications.ChannelPush, like.Channels)
	assert.Equal(t, notifications.PriorityLow, like.DefaultPriority)
	assert.Equal(t, 10*time.Minute, like.BatchWindow)
	assert.Equal(t, 30*time.Minute, like.DeduplicationWindow)
	assert.True(t, like.Batches())

	dm := rules[notifications.TypeDirectMessage]
	assert.Equal(t, notifications.ChannelAll, dm.Channels)
	assert.Equal(t, notifications.PriorityUrgent, dm.DefaultPriority)
	assert.Zero(t, dm.MaxPerHour)
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
		err  error
	}{
		{"unknown type", "rules:\n  - type: poke\n", rulefile.ErrInvalidRuleFile},
		{"unknown channel", "rules:\n  - type: like\n    channels: [pigeon]\n", notifications.ErrUnknownChannel},
		{"unknown priority", "rules:\n  - type: like\n    priority: meh\n", notifications.ErrUnknownPriority},
		{"unknown key", "rules:\n  - type: like\n    batch_size: 3\n", rulefile.ErrInvalidRuleFile},
		{"bad duration", "rules:\n  - type: like\n    batch_window: soon\n", rulefile.ErrInvalidRuleFile},
		{"duplicate type", "rules:\n  - type: like\n  - type: like\n", rulefile.ErrDuplicateType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := rulefile.Parse([]byte(tt.yaml))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestParse_Empty(t *testing.T) {
	t.Parallel()

	rules, err := rulefile.Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestMarshal_DefaultRules(t *testing.T) {
	t.Parallel()

	data, err := rulefile.Marshal(notifications.DefaultRules())
	require.NoError(t, err)
	assert.Contains(t, string(data), "batch_window: 10m0s")

	rules, err := rulefile.Parse(data)
	require.NoError(t, err)
	assert.Equal(t, notifications.DefaultRules(), rules)
}

type recorder struct {
	mu    sync.Mutex
	calls []map[notifications.Type]notifications.ProcessingRule
	err   error
}

func (r *recorder) apply(rules map[notifications.Type]notifications.ProcessingRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.calls = append(r.calls, rules)
	return nil
}

func (r *recorder) last() map[notifications.Type]notifications.ProcessingRule {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return nil
	}
	return r.calls[len(r.calls)-1]
}

func TestWatcher_Reload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(likeRules), 0o600))

	rec := &recorder{}
	w := rulefile.NewWatcher(path, rec.apply)
	ctx := context.Background()

	require.NoError(t, w.Reload(ctx))
	require.NoError(t, w.Reload(ctx))
	assert.Equal(t, 1, w.Reloads())

	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - type: follow\n    max_per_hour: 3\n"), 0o600))
	rec.err = errors.New("rejected")
	assert.Error(t, w.Reload(ctx))
	assert.Equal(t, 1, w.Reloads())

	rec.err = nil
	require.NoError(t, w.Reload(ctx))
	assert.Equal(t, 2, w.Reloads())
	assert.Equal(t, 3, rec.last()[notifications.TypeFollow].MaxPerHour)
}

func TestWatcher_Watch(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(likeRules), 0o600))

	rec := &recorder{}
	w := rulefile.NewWatcher(path, rec.apply, rulefile.WithDebounce(20*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()

	require.Eventually(t, func() bool { return w.Reloads() == 1 }, 2*time.Second, 10*time.Millisecond)

	// An invalid edit keeps the previous rules.
	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - type: poke\n"), 0o600))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, w.Reloads())

	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - type: mention\n    max_per_hour: 5\n"), 0o600))
	require.Eventually(t, func() bool { return w.Reloads() == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 5, rec.last()[notifications.TypeMention].MaxPerHour)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcher_MissingFile(t *testing.T) {
	t.Parallel()

	w := rulefile.NewWatcher(filepath.Join(t.TempDir(), "missing.yaml"), (&recorder{}).apply)
	assert.ErrorIs(t, w.Watch(context.Background()), os.ErrNotExist)
}
