// Package pacer makes pacing and retrying API calls easy
package pacer

import (
	"errors"
	"sync"
	"time"

	"github.com/driveback/driveback/fs"
)

// Pacer state
type Pacer struct {
	mu                 sync.Mutex    // Protecting read/writes
	minSleep           time.Duration // minimum sleep time
	maxSleep           time.Duration // maximum sleep time
	decayConstant      uint          // decay constant
	retries            int           // Max number of retries
	pacer              chan struct{} // To pace the operations
	sleepTime          time.Duration // Time to sleep for each transaction
	consecutiveRetries int           // number of consecutive retries
}

// Option can be used in New to configure the Pacer
type Option func(*Pacer)

// MinSleep sets the minimum sleep time for the pacer
func MinSleep(t time.Duration) Option {
	return func(p *Pacer) { p.minSleep = t }
}

// MaxSleep sets the maximum sleep time for the pacer
func MaxSleep(t time.Duration) Option {
	return func(p *Pacer) { p.maxSleep = t }
}

// DecayConstant sets the decay constant for the pacer
//
// This is the speed the time falls back to the minimum after errors
// have occurred.
//
// bigger for slower decay, exponential
func DecayConstant(decay uint) Option {
	return func(p *Pacer) { p.decayConstant = decay }
}

// Retries sets the max number of tries for Call
func Retries(retries int) Option {
	return func(p *Pacer) { p.retries = retries }
}

// Paced is a function which is called by the Call and CallNoRetry
// methods.  It should return a boolean, true if it would like to be
// retried, and an error.  This error may be returned or returned
// wrapped in a RetryError.
type Paced func() (bool, error)

// New returns a Pacer with sensible defaults
func New(options ...Option) *Pacer {
	p := &Pacer{
		minSleep:      10 * time.Millisecond,
		maxSleep:      2 * time.Second,
		decayConstant: 2,
		retries:       10,
		pacer:         make(chan struct{}, 1),
	}
	for _, option := range options {
		option(p)
	}
	p.sleepTime = p.minSleep

	// Put the first pacing token in
	p.pacer <- struct{}{}

	return p
}

// SetRetries sets the max number of retries for Call
func (p *Pacer) SetRetries(retries int) *Pacer {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retries = retries
	return p
}

// Start a call to the API
//
// This must be called as a pair with endCall
//
// This waits for the pacer token
func (p *Pacer) beginCall() {
	// pacer starts with a token in and whenever we take one out
	// XXX ms later we put another in.
	<-p.pacer

	p.mu.Lock()
	// Restart the timer
	go func(t time.Duration) {
		time.Sleep(t)
		p.pacer <- struct{}{}
	}(p.sleepTime)
	p.mu.Unlock()
}

// exponential attack and decay
//
// This calculates a new sleepTime.  It takes a boolean as to whether
// the operation should be retried or not.
//
// Called with the lock held
func (p *Pacer) calculatePace(again bool, retryAfter time.Duration) {
	oldSleepTime := p.sleepTime
	if again {
		p.sleepTime *= 2
		if p.sleepTime > p.maxSleep {
			p.sleepTime = p.maxSleep
		}
		// A server-directed Retry-After overrides the computed pace
		// when it asks for longer.
		if retryAfter > p.sleepTime {
			p.sleepTime = retryAfter
		}
		if p.sleepTime != oldSleepTime {
			fs.Debugf("pacer", "Rate limited, increasing sleep to %v", p.sleepTime)
		}
	} else {
		p.sleepTime = (p.sleepTime<<p.decayConstant - p.sleepTime) >> p.decayConstant
		if p.sleepTime < p.minSleep {
			p.sleepTime = p.minSleep
		}
		if p.sleepTime != oldSleepTime {
			fs.Debugf("pacer", "Reducing sleep to %v", p.sleepTime)
		}
	}
}

// endCall implements the pacing algorithm
func (p *Pacer) endCall(again bool, err error) {
	p.mu.Lock()
	if again {
		p.consecutiveRetries++
	} else {
		p.consecutiveRetries = 0
	}
	retryAfter, _ := RetryAfterErrorTime(err)
	p.calculatePace(again, retryAfter)
	p.mu.Unlock()
}

// call implements Call but with settable retries
func (p *Pacer) call(fn Paced, retries int) (err error) {
	var again bool
	for i := 0; i < retries; i++ {
		p.beginCall()
		again, err = fn()
		p.endCall(again, err)
		if !again {
			break
		}
	}
	if again {
		err = RetryError(err)
	}
	return err
}

// Call paces the remote operations to not exceed the limits and retry
// on rate limit exceeded
//
// This calls fn, expecting it to return a retry flag and an
// error. This error may be returned wrapped in a RetryError if the
// number of retries is exceeded.
func (p *Pacer) Call(fn Paced) (err error) {
	p.mu.Lock()
	retries := p.retries
	p.mu.Unlock()
	return p.call(fn, retries)
}

// CallNoRetry paces the remote operations to not exceed the limits
// and return a retry error on rate limit exceeded
func (p *Pacer) CallNoRetry(fn Paced) error {
	return p.call(fn, 1)
}

// retryAfterError tags an error with a server requested delay
type retryAfterError struct {
	error
	retryAfter time.Duration
}

func (r *retryAfterError) Unwrap() error {
	return r.error
}

// Retry marks the error retriable for fserrors.Retrier
func (r *retryAfterError) Retry() bool {
	return true
}

// RetryAfterError returns a wrapped error that can be used by
// calculatePace to pause for the given delay before the next request.
func RetryAfterError(err error, retryAfter time.Duration) error {
	if err == nil {
		err = errors.New("too many requests")
	}
	return &retryAfterError{
		error:      err,
		retryAfter: retryAfter,
	}
}

// RetryAfterErrorTime returns the delay of the retryAfterError in the
// error chain, or 0 and false if there is none.
func RetryAfterErrorTime(err error) (retryAfter time.Duration, ok bool) {
	var r *retryAfterError
	if errors.As(err, &r) {
		return r.retryAfter, true
	}
	return 0, false
}

// RetryError is a wrapper applied by Call when the retries are
// exhausted but fn still wanted a retry.
func RetryError(err error) error {
	if err == nil {
		err = errors.New("needs retry")
	}
	return &retryExhaustedError{err}
}

type retryExhaustedError struct {
	error
}

func (r *retryExhaustedError) Unwrap() error {
	return r.error
}
