package batcher

import (
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

const DefaultShards = 32

type shard struct {
	mu sync.Mutex
	// open maps user|type|group to the batch currently accepting members.
	open map[string]*Batch
	// pending holds every unflushed batch by id, open or full.
	pending map[string]*Batch
}

// Batcher collects notifications into per-user groups until a group is full
// or its window elapses. Each batch is handed out by exactly one flush.
type Batcher struct {
	shards []*shard

	idxMu sync.RWMutex
	owner map[string]string // batch id -> user id

	now func() time.Time
}

// Option configures a Batcher.
type Option func(*Batcher)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Batcher) {
		if now != nil {
			b.now = now
		}
	}
}

// New creates an empty Batcher.
func New(opts ...Option) *Batcher {
	b := &Batcher{
		shards: make([]*shard, DefaultShards),
		owner:  make(map[string]string),
		now:    time.Now,
	}
	for i := range b.shards {
		b.shards[i] = &shard{open: make(map[string]*Batch), pending: make(map[string]*Batch)}
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Batcher) shardFor(userID string) *shard {
	return b.shards[xxhash.Sum64String(userID)%uint64(len(b.shards))]
}

func batchKey(userID string, t notifications.Type, group string) string {
	return userID + "|" + string(t) + "|" + group
}

// AddToBatch appends n to the open batch for its (user, type, group key),
// creating one when none is open. ready is true when this member filled the
// batch; the batch then stops accepting members and the caller should flush
// it. The next matching notification opens a new batch.
func (b *Batcher) AddToBatch(n notifications.Notification, rule notifications.ProcessingRule) (batchID string, ready bool) {
	now := b.now()
	sh := b.shardFor(n.UserID)
	key := batchKey(n.UserID, n.Type, n.GroupKey)

	sh.mu.Lock()
	batch, ok := sh.open[key]
	if !ok {
		batch = &Batch{
			ID:           uuid.NewString(),
			UserID:       n.UserID,
			Type:         n.Type,
			GroupKey:     n.GroupKey,
			CreatedAt:    now,
			ScheduledFor: now.Add(rule.BatchWindow),
			MaxSize:      rule.MaxBatchSize,
		}
		sh.open[key] = batch
		sh.pending[batch.ID] = batch
	}
	batch.Members = append(batch.Members, n.Clone())
	if batch.Full() {
		delete(sh.open, key)
		ready = true
	}
	batchID = batch.ID
	sh.mu.Unlock()

	if !ok {
		b.idxMu.Lock()
		b.owner[batchID] = n.UserID
		b.idxMu.Unlock()
	}
	return batchID, ready
}

// FlushBatch removes the batch and returns it. It returns false when the id
// is unknown or the batch was already flushed.
func (b *Batcher) FlushBatch(id string) (Batch, bool) {
	b.idxMu.RLock()
	userID, ok := b.owner[id]
	b.idxMu.RUnlock()
	if !ok {
		return Batch{}, false
	}

	sh := b.shardFor(userID)
	sh.mu.Lock()
	batch, ok := sh.pending[id]
	if ok {
		b.detach(sh, batch)
	}
	sh.mu.Unlock()
	if !ok {
		return Batch{}, false
	}

	b.idxMu.Lock()
	delete(b.owner, id)
	b.idxMu.Unlock()
	return *batch, true
}

// detach removes batch from the shard. The caller holds sh.mu.
func (b *Batcher) detach(sh *shard, batch *Batch) {
	delete(sh.pending, batch.ID)
	key := batchKey(batch.UserID, batch.Type, batch.GroupKey)
	if cur, ok := sh.open[key]; ok && cur.ID == batch.ID {
		delete(sh.open, key)
	}
}

// Due flushes and returns every batch that is full or whose window has
// elapsed, oldest first.
func (b *Batcher) Due(now time.Time) []Batch {
	return b.flushWhere(func(batch *Batch) bool {
		return batch.Full() || batch.Due(now)
	})
}

// FlushAll flushes every pending batch regardless of its window.
func (b *Batcher) FlushAll() []Batch {
	return b.flushWhere(func(*Batch) bool { return true })
}

func (b *Batcher) flushWhere(match func(*Batch) bool) []Batch {
	var out []Batch
	for _, sh := range b.shards {
		sh.mu.Lock()
		for _, batch := range sh.pending {
			if match(batch) {
				b.detach(sh, batch)
				out = append(out, *batch)
			}
		}
		sh.mu.Unlock()
	}
	if len(out) == 0 {
		return nil
	}

	b.idxMu.Lock()
	for _, batch := range out {
		delete(b.owner, batch.ID)
	}
	b.idxMu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Open returns the number of unflushed batches.
func (b *Batcher) Open() int {
	n := 0
	for _, sh := range b.shards {
		sh.mu.Lock()
		n += len(sh.pending)
		sh.mu.Unlock()
	}
	return n
}

// Get returns a copy of an unflushed batch.
func (b *Batcher) Get(id string) (Batch, bool) {
	b.idxMu.RLock()
	userID, ok := b.owner[id]
	b.idxMu.RUnlock()
	if !ok {
		return Batch{}, false
	}

	sh := b.shardFor(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	batch, ok := sh.pending[id]
	if !ok {
		return Batch{}, false
	}
	cp := *batch
	cp.Members = append([]notifications.Notification(nil), batch.Members...)
	return cp, true
}
