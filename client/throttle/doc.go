// Package throttle paces socket admission using a token-bucket
// algorithm from [golang.org/x/time/rate].
//
// # Usage
//
//	limiter, err := throttle.New(10, 5) // 10 admissions/sec, burst 5
//	cl, err := client.Build(client.WithThrottle(limiter))
//
// Unlike [golang.org/x/time/rate.Limiter.Wait], [Limiter.Allow] never
// blocks: a request denied a token simply remains Enqueued and is
// retried on the scheduler's next tick.
package throttle
