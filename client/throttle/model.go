package throttle

import (
	"errors"
	"fmt"

	"golang.org/x/time/rate"
)

// ErrMustNotBeZero is wrapped by [New] when rps or burst is not positive.
var ErrMustNotBeZero = errors.New("must be greater than zero")

// Limiter paces how fast the scheduler opens new sockets for Enqueued
// requests, using a token-bucket algorithm.
type Limiter struct {
	rl *rate.Limiter
}

// New builds a Limiter admitting up to rps sockets per second, with
// burst capacity for an initial spike.
func New(rps, burst int) (*Limiter, error) {
	if rps <= 0 || burst <= 0 {
		return nil, fmt.Errorf("rps[%d] and burst[%d] %w", rps, burst, ErrMustNotBeZero)
	}
	return &Limiter{rl: rate.NewLimiter(rate.Limit(rps), burst)}, nil
}

// Allow reports whether one more socket may be opened right now,
// consuming a token if so. It never blocks: the scheduler's tick loop
// cannot afford rate.Limiter.Wait's blocking contract, so a request
// denied a token simply stays Enqueued and is retried next tick.
func (l *Limiter) Allow() bool {
	return l.rl.Allow()
}
