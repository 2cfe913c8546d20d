// Package redis connects to Redis with retry and exposes a health probe.
//
// The dedup package stores its keys here when several notifyd replicas must
// agree on what they already delivered.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	store := dedup.NewRedisStore(client, dedup.WithKeyPrefix(cfg.KeyPrefix))
//	check := redis.Healthcheck(client)
//
// Config is populated from REDIS_* environment variables by pkg/config.
package redis
