// Package dedup suppresses near-identical notifications.
//
// Two notifications are the same event when they share user, type, sender and
// group key. The tuple is hashed with xxhash and recorded in a Store for the
// rule's deduplication window. Store.Add checks and records atomically, so two
// workers racing on the same tuple admit exactly one notification.
//
// MemoryStore (go-cache) serves a single process; RedisStore (SET NX) lets
// several processes share the window.
//
//	d := dedup.New(dedup.NewMemoryStore(time.Minute))
//	dup, err := d.Check(ctx, n, rule)
//	if dup {
//	    // drop n
//	}
package dedup
