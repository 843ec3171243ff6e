package player

import (
	"sync"
	"time"
)

type timerState int

const (
	timerIdle timerState = iota
	timerRunning
	timerPaused
	timerStopped
)

// Timer counts down a fixed quiz duration and fires the expiry callback
// exactly once when it reaches zero. Stop tears the timer down without
// firing the callback.
type Timer struct {
	mu           sync.Mutex
	state        timerState
	secondsLeft  int
	tickInterval time.Duration
	onExpire     func()
	expired      bool
	stopCh       chan struct{}
	cbDone       chan struct{} // closed when the expiry callback returns
}

func NewTimer(durationSeconds int, onExpire func()) *Timer {
	if durationSeconds < 0 {
		durationSeconds = 0
	}
	return &Timer{
		state:        timerIdle,
		secondsLeft:  durationSeconds,
		tickInterval: time.Second,
		onExpire:     onExpire,
	}
}

// SetTickInterval overrides the one-second tick. It only takes effect before
// Start is called.
func (t *Timer) SetTickInterval(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == timerIdle && d > 0 {
		t.tickInterval = d
	}
}

func (t *Timer) Start() {
	t.mu.Lock()
	if t.state != timerIdle {
		t.mu.Unlock()
		return
	}
	if t.secondsLeft == 0 {
		t.state = timerStopped
		t.expired = true
		cb := t.onExpire
		done := make(chan struct{})
		t.cbDone = done
		t.mu.Unlock()
		if cb != nil {
			cb()
		}
		close(done)
		return
	}
	t.state = timerRunning
	t.stopCh = make(chan struct{})
	interval := t.tickInterval
	stop := t.stopCh
	t.mu.Unlock()

	go t.run(interval, stop)
}

func (t *Timer) run(interval time.Duration, stop chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if t.tick() {
				return
			}
		}
	}
}

// tick decrements one second when running and reports whether the timer is
// done counting.
func (t *Timer) tick() bool {
	t.mu.Lock()
	if t.state == timerPaused {
		t.mu.Unlock()
		return false
	}
	if t.state != timerRunning {
		t.mu.Unlock()
		return true
	}

	t.secondsLeft--
	if t.secondsLeft > 0 {
		t.mu.Unlock()
		return false
	}

	t.secondsLeft = 0
	t.state = timerStopped
	t.expired = true
	cb := t.onExpire
	done := make(chan struct{})
	t.cbDone = done
	t.mu.Unlock()

	if cb != nil {
		cb()
	}
	close(done)
	return true
}

func (t *Timer) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == timerRunning {
		t.state = timerPaused
	}
}

func (t *Timer) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == timerPaused {
		t.state = timerRunning
	}
}

// Stop ends the countdown without firing the expiry callback. When expiry has
// already committed, Stop returns only after the callback has finished, so the
// callback must not call back into Stop or Reset.
func (t *Timer) Stop() {
	t.mu.Lock()
	if t.state == timerStopped || t.state == timerIdle {
		t.state = timerStopped
		done := t.cbDone
		t.mu.Unlock()
		if done != nil {
			<-done
		}
		return
	}
	t.state = timerStopped
	if t.stopCh != nil {
		close(t.stopCh)
		t.stopCh = nil
	}
	t.mu.Unlock()
}

// Reset stops any running countdown and re-arms the timer with a new
// duration. The expiry callback is kept.
func (t *Timer) Reset(durationSeconds int) {
	t.Stop()
	t.mu.Lock()
	defer t.mu.Unlock()
	if durationSeconds < 0 {
		durationSeconds = 0
	}
	t.state = timerIdle
	t.secondsLeft = durationSeconds
	t.expired = false
	t.cbDone = nil
}

func (t *Timer) SecondsLeft() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.secondsLeft < 0 {
		return 0
	}
	return t.secondsLeft
}

func (t *Timer) Expired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.expired
}
