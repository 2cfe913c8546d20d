// Package logger builds *slog.Logger instances for notifykit services.
//
// New takes functional options for format (text or JSON), level, output and
// static attributes, and wraps the handler in a ContextHandler. Attributes
// attached with ContextWithAttrs, and values pulled by ContextExtractor
// callbacks, are added to every record logged with that context:
//
//	ctx = logger.ContextWithAttrs(ctx, logger.RequestID(id))
//	log.InfoContext(ctx, "accepted") // carries request_id
//
// Environment presets pick sensible defaults:
//
//	log := logger.New(logger.WithEnvironment(cfg.Env, "notifyd"))
//	logger.SetAsDefault(log)
//
// The attribute helpers keep key names consistent across packages:
//
//	log.LogAttrs(ctx, slog.LevelWarn, "delivery attempt failed",
//	    logger.NotificationID(n.ID),
//	    logger.UserID(n.UserID),
//	    logger.Channel("push"),
//	    logger.Attempt(2),
//	    logger.Error(err),
//	)
//
// Error, UserID and the other id helpers return an empty attribute for empty
// input, which slog drops, so callers need no nil checks.
package logger
