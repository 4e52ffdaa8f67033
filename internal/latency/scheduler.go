package latency

import (
	"sync"
	"time"
)

// TimerScheduler fires callbacks with time.AfterFunc and hands them to post,
// which is expected to run them on the owner's event loop.
type TimerScheduler struct {
	post func(fn func())
}

// NewTimerScheduler returns a Scheduler backed by wall-clock timers.
//
// Precondition: post must be non-nil and must not block indefinitely.
func NewTimerScheduler(post func(fn func())) *TimerScheduler {
	return &TimerScheduler{post: post}
}

// Now returns the wall-clock time.
func (t *TimerScheduler) Now() time.Time {
	return time.Now()
}

// After posts fn once d has elapsed unless cancel is called first.
func (t *TimerScheduler) After(d time.Duration, fn func()) func() {
	timer := time.AfterFunc(d, func() { t.post(fn) })
	var once sync.Once
	return func() {
		once.Do(func() { timer.Stop() })
	}
}
