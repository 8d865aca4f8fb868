package discordrpc

import (
	"time"

	"github.com/jpillora/backoff"
)

// newReconnectBackoff builds the jittered exponential backoff schedule:
// base 1s, cap 60s, multiplier 2. With Jitter set, jpillora/backoff draws
// each delay uniformly between the 1s base and the current step, so a delay
// is never shorter than 1s.
func newReconnectBackoff() *backoff.Backoff {
	return &backoff.Backoff{
		Min:    1 * time.Second,
		Max:    60 * time.Second,
		Factor: 2,
		Jitter: true,
	}
}
