// Package push implements the push notification channel.
//
// A Registry maps users to device tokens per platform (ios, android, web).
// Tokens that have not been refreshed for 90 days are treated as expired and
// are skipped by Targets; Cleanup removes them along with deactivated ones.
// The registry also keeps a per-user badge counter that is incremented on
// each send.
//
// Sends go through a Provider. HTTPProvider posts JSON to a gateway and
// classifies the reply:
//
//	2xx                      success
//	404, 410, "unregistered" dispatcher.ErrTokenInvalid (device deactivated)
//	408, 425, 429, 5xx       dispatcher.ErrTransient (retried)
//	other 4xx                dispatcher.ErrPermanent
//
// Requests are signed with HMAC-SHA256 over "timestamp.body" when a signing
// secret is configured; Verify checks the headers on the gateway side.
//
// A CircuitBreaker guards the gateway. Only transport errors and transient
// replies count as failures.
//
// # Usage
//
//	ch, err := push.NewFromConfig(cfg, push.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//	ch.Registry().Register(push.Device{UserID: "u1", Token: tok, Platform: push.PlatformIOS})
//	d.Register(ch, dispatcher.WithProviderLimits(cfg.ProviderLimits()))
package push
