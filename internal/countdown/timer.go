package countdown

import (
	"sync"
	"time"
)

// Timer counts an attempt down one second per tick. It is created once per
// attempt session and released with Stop.
type Timer struct {
	mu        sync.Mutex
	remaining int

	ticker   Ticker
	onTick   func(remaining int)
	onExpire func()

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// Start begins counting down from remaining seconds. onTick runs after every
// decrement; onExpire runs exactly once when the count reaches zero, after
// which the timer stops by itself. Either callback may be nil.
func Start(clock Clock, remaining int, onTick func(int), onExpire func()) *Timer {
	if remaining < 0 {
		remaining = 0
	}
	t := &Timer{
		remaining: remaining,
		onTick:    onTick,
		onExpire:  onExpire,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	if remaining == 0 {
		go t.expire()
		return t
	}
	t.ticker = clock.NewTicker(time.Second)
	go t.run()
	return t
}

// Remaining returns the seconds left. Successive reads never increase.
func (t *Timer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// Stop halts the countdown. It is safe to call more than once and from inside
// a callback.
func (t *Timer) Stop() {
	t.stopOnce.Do(func() {
		close(t.stop)
		if t.ticker != nil {
			t.ticker.Stop()
		}
	})
}

// Done is closed once the tick loop has exited.
func (t *Timer) Done() <-chan struct{} {
	return t.done
}

func (t *Timer) run() {
	defer close(t.done)
	defer t.ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-t.ticker.C():
			t.mu.Lock()
			if t.remaining > 0 {
				t.remaining--
			}
			left := t.remaining
			t.mu.Unlock()

			if t.onTick != nil {
				t.onTick(left)
			}
			if left == 0 {
				t.fireExpire()
				return
			}
		}
	}
}

func (t *Timer) expire() {
	defer close(t.done)
	t.fireExpire()
}

func (t *Timer) fireExpire() {
	select {
	case <-t.stop:
		return
	default:
	}
	t.Stop()
	if t.onExpire != nil {
		t.onExpire()
	}
}
