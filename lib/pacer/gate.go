package pacer

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/driveback/driveback/fs"
)

// RetryAfterGate remembers, per host, the earliest time the next
// request may be issued, as directed by Retry-After response headers.
//
// The gate is shared by every operation targeting the same host so a
// single 429/503 backs off the whole process rather than each
// transfer independently.
type RetryAfterGate struct {
	mu        sync.Mutex
	deadlines map[string]*int64 // host -> unix nanoseconds, updated with CAS
}

// NewRetryAfterGate creates an empty gate
func NewRetryAfterGate() *RetryAfterGate {
	return &RetryAfterGate{
		deadlines: map[string]*int64{},
	}
}

// StandardGate is the process wide gate used by fshttp.
var StandardGate = NewRetryAfterGate()

func (g *RetryAfterGate) deadline(host string) *int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	p := g.deadlines[host]
	if p == nil {
		p = new(int64)
		g.deadlines[host] = p
	}
	return p
}

// Wait blocks until the gate for host is open or ctx is cancelled.
func (g *RetryAfterGate) Wait(ctx context.Context, host string) error {
	for {
		until := time.Unix(0, atomic.LoadInt64(g.deadline(host)))
		d := time.Until(until)
		if d <= 0 {
			return ctx.Err()
		}
		fs.Debugf(nil, "Waiting %v for Retry-After deadline on %q", d, host)
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		// deadline may have moved while sleeping, check again
	}
}

// Delay returns how long Wait would currently block for host.
func (g *RetryAfterGate) Delay(host string) time.Duration {
	d := time.Until(time.Unix(0, atomic.LoadInt64(g.deadline(host))))
	if d < 0 {
		d = 0
	}
	return d
}

// Set moves the gate for host to deadline unless it is already later.
func (g *RetryAfterGate) Set(host string, deadline time.Time) {
	p := g.deadline(host)
	n := deadline.UnixNano()
	for {
		old := atomic.LoadInt64(p)
		if old >= n {
			return
		}
		if atomic.CompareAndSwapInt64(p, old, n) {
			return
		}
	}
}

// Observe updates the gate for host from the Retry-After header of
// resp, if any.  It is called for every response, success or error.
func (g *RetryAfterGate) Observe(host string, resp *http.Response) {
	if resp == nil {
		return
	}
	value := resp.Header.Get("Retry-After")
	if value == "" {
		return
	}
	deadline, ok := ParseRetryAfter(value, time.Now())
	if !ok {
		fs.Debugf(nil, "Failed to parse Retry-After: %q", value)
		return
	}
	fs.Debugf(nil, "Retry-After %q: holding requests to %q until %v", value, host, deadline)
	g.Set(host, deadline)
}

// ParseRetryAfter parses a Retry-After header value which may be a
// relative number of seconds or an absolute HTTP-date.
func ParseRetryAfter(value string, now time.Time) (deadline time.Time, ok bool) {
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return time.Time{}, false
		}
		return now.Add(time.Duration(seconds) * time.Second), true
	}
	if date, err := http.ParseTime(value); err == nil {
		return date, true
	}
	return time.Time{}, false
}
