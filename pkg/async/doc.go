// Package async provides generic futures for running work concurrently and
// waiting for the outcome.
//
// Async starts a function in its own goroutine and returns a *Future. Callers
// wait with Await, bound the wait with AwaitWithTimeout or AwaitContext, or
// poll with IsComplete. Resolved builds a future that is already complete,
// which lets synchronous implementations satisfy future-returning interfaces.
//
// WaitAll stops at the first error, WaitSettled collects every outcome and
// WaitAny returns the first future to finish.
//
// A context that is already cancelled completes the future with the context
// error without calling the function. A panic in the function completes the
// future with ErrPanicked.
//
//	f := async.Async(ctx, target, func(ctx context.Context, target string) (Result, error) {
//	    return provider.Send(ctx, target)
//	})
//	res, err := f.AwaitContext(sendCtx)
package async
