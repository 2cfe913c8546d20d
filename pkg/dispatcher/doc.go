// Package dispatcher delivers notifications over pluggable channels.
//
// A Channel knows its templates, how to render a payload, where a user can be
// reached and how to send to one target. The Dispatcher drives every
// registered channel concurrently for a notification:
//
//  1. look up the channel template for the notification type
//  2. render the payload
//  3. list the user's targets
//  4. send to each target, retrying retryable failures with exponential
//     backoff up to the attempt budget
//
// Missing templates, render errors and users without targets are reported
// for that channel without retry. ErrPermanent and ErrTokenInvalid stop the
// retry loop; a token error also asks the channel to deactivate the target
// when it implements TargetManager. Provider quotas registered with
// WithProviderLimits are checked before every attempt and surface as a
// retryable ErrRateLimitExceeded.
//
// The outcome is sent when any channel succeeds and failed otherwise.
//
//	d := dispatcher.New(dispatcher.WithMaxAttempts(3), dispatcher.WithLogger(log))
//	d.Register(emailChannel, dispatcher.WithProviderLimits(ratelimit.Limits{PerMinute: 100, PerHour: 1000}))
//	out := d.Dispatch(ctx, n, notifications.ChannelEmail|notifications.ChannelPush)
package dispatcher
