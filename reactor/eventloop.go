// File: reactor/eventloop.go
// Author grounding: original_source/src/net/eventloop.h/.cpp (loop/quit,
// runInLoop/queueInLoop, wakeupFd_/wakeupChannel_, pendingFunctors_ under
// MutexLock with swap-then-execute-outside-lock). The deferred-task queue
// is backed by github.com/eapache/queue, a dependency the teacher (momentics
// hioload-ws) carries in go.mod but never imports; ReactorKV gives it the
// job original_source assigns to pendingFunctors_.

package reactor

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
)

// pollTimeout bounds how long a single Poll call may block, so a loop with
// no registered Channels still notices Quit in bounded time.
const pollTimeout = 10 * time.Second

// Functor is a task queued for execution on an EventLoop's own thread.
type Functor func()

// EventLoop runs one thread's poll-dispatch-deferred-tasks cycle. An
// EventLoop must only be driven by the goroutine that calls Run; every
// other goroutine interacts with it through RunInLoop/QueueInLoop/Wakeup.
type EventLoop struct {
	looping         int32
	quit            int32
	handling        int32
	callingDeferred int32

	goroutineID uint64 // captured at NewEventLoop, compared by AssertInLoopGoroutine

	poller Poller

	wakeupFD      int
	wakeupChannel *Channel

	mu      sync.Mutex
	pending *queue.Queue

	activeChannels []*Channel
	current        *Channel
}

// NewEventLoop constructs an EventLoop bound to the calling goroutine's
// identity. runtime.LockOSThread is called here, at construction, rather
// than deferred to Run: a goroutine's identity is only stable against
// currentGoroutineID (which reads the OS thread id) once it is pinned, and
// the caller is free to block on I/O (e.g. loading a data file) between
// NewEventLoop and Run, which would otherwise let the Go scheduler resume
// it on a different thread and desync RunInLoop's ownership check. The
// loop must be run, and eventually Closed, by the same goroutine that
// constructed it, matching original_source's one-EventLoop-per-thread
// invariant.
func NewEventLoop() (*EventLoop, error) {
	runtime.LockOSThread()

	poller, err := NewPoller()
	if err != nil {
		runtime.UnlockOSThread()
		return nil, err
	}
	wakeupFD, err := newWakeupFD()
	if err != nil {
		poller.Close()
		runtime.UnlockOSThread()
		return nil, fmt.Errorf("reactor: eventloop: %w", err)
	}

	loop := &EventLoop{
		poller:   poller,
		wakeupFD: wakeupFD,
		pending:  queue.New(),
	}
	atomic.StoreUint64(&loop.goroutineID, currentGoroutineID())
	loop.wakeupChannel = NewChannel(loop, wakeupFD)
	loop.wakeupChannel.SetReadCallback(loop.handleWakeupRead)
	loop.wakeupChannel.EnableReading()
	return loop, nil
}

// Run blocks, dispatching ready Channels and deferred tasks until Quit is
// called. It must run on the goroutine that called NewEventLoop, which
// NewEventLoop has already pinned to its OS thread.
func (l *EventLoop) Run() {
	atomic.StoreInt32(&l.looping, 1)
	atomic.StoreInt32(&l.quit, 0)

	for atomic.LoadInt32(&l.quit) == 0 {
		l.activeChannels = l.activeChannels[:0]
		pollTime, err := l.poller.Poll(int(pollTimeout/time.Millisecond), &l.activeChannels)
		if err != nil {
			continue
		}

		atomic.StoreInt32(&l.handling, 1)
		for _, ch := range l.activeChannels {
			l.current = ch
			ch.HandleEvent(pollTime)
		}
		l.current = nil
		atomic.StoreInt32(&l.handling, 0)

		l.doPendingFunctors()
	}

	atomic.StoreInt32(&l.looping, 0)
}

// Quit arranges for Run to return after its current iteration. Safe to
// call from any goroutine.
func (l *EventLoop) Quit() {
	atomic.StoreInt32(&l.quit, 1)
	if !l.IsInLoopGoroutine() {
		l.Wakeup()
	}
}

// RunInLoop executes fn immediately if called from the loop's own
// goroutine, otherwise defers it via QueueInLoop.
func (l *EventLoop) RunInLoop(fn Functor) {
	if l.IsInLoopGoroutine() {
		fn()
		return
	}
	l.QueueInLoop(fn)
}

// QueueInLoop always defers fn to run on the loop's goroutine, waking the
// loop if it might otherwise sleep past fn's enqueue: either the caller is
// on a different goroutine, or the loop is mid doPendingFunctors and could
// miss a freshly appended task without a nudge.
func (l *EventLoop) QueueInLoop(fn Functor) {
	l.mu.Lock()
	l.pending.Add(fn)
	l.mu.Unlock()

	if !l.IsInLoopGoroutine() || atomic.LoadInt32(&l.callingDeferred) == 1 {
		l.Wakeup()
	}
}

// Wakeup unblocks a poll that may currently be parked, by writing one
// 8-byte word to the loop's eventfd.
func (l *EventLoop) Wakeup() {
	if err := writeWakeup(l.wakeupFD); err != nil {
		panic(err)
	}
}

func (l *EventLoop) handleWakeupRead(time.Time) {
	drainWakeup(l.wakeupFD)
}

// doPendingFunctors swaps the pending queue out under lock, then runs the
// collected tasks outside the lock, so a task that itself calls
// QueueInLoop never deadlocks against mu.
func (l *EventLoop) doPendingFunctors() {
	atomic.StoreInt32(&l.callingDeferred, 1)

	l.mu.Lock()
	pending := l.pending
	l.pending = queue.New()
	l.mu.Unlock()

	for pending.Length() > 0 {
		fn := pending.Remove().(Functor)
		fn()
	}

	atomic.StoreInt32(&l.callingDeferred, 0)
}

// updateChannel and removeChannel are invoked only by Channel, from the
// loop's own goroutine.
func (l *EventLoop) updateChannel(ch *Channel) {
	l.AssertInLoopGoroutine()
	if err := l.poller.UpdateChannel(ch); err != nil {
		panic(err)
	}
}

func (l *EventLoop) removeChannel(ch *Channel) {
	l.AssertInLoopGoroutine()
	if l.current == ch {
		l.current = nil
	}
	if err := l.poller.RemoveChannel(ch); err != nil {
		panic(err)
	}
}

// HasChannel reports whether ch is currently registered with this loop's
// Poller.
func (l *EventLoop) HasChannel(ch *Channel) bool {
	return l.poller.HasChannel(ch)
}

// IsInLoopGoroutine reports whether the calling goroutine is the one
// driving Run.
func (l *EventLoop) IsInLoopGoroutine() bool {
	return currentGoroutineID() == atomic.LoadUint64(&l.goroutineID)
}

// AssertInLoopGoroutine panics if called off the loop's own goroutine,
// mirroring original_source's abortNotInLoopThread fatal check.
func (l *EventLoop) AssertInLoopGoroutine() {
	if !l.IsInLoopGoroutine() {
		panic(fmt.Sprintf("reactor: EventLoop used from goroutine %d, owned by goroutine %d",
			currentGoroutineID(), atomic.LoadUint64(&l.goroutineID)))
	}
}

// IsLooping reports whether Run is currently active.
func (l *EventLoop) IsLooping() bool { return atomic.LoadInt32(&l.looping) == 1 }

// Close releases the loop's wakeup descriptor and Poller, and unpins the
// goroutine NewEventLoop locked to its OS thread. Call only after Run has
// returned, from the same goroutine that called NewEventLoop.
func (l *EventLoop) Close() error {
	l.wakeupChannel.DisableAll()
	l.wakeupChannel.Remove()
	closeWakeupFD(l.wakeupFD)
	err := l.poller.Close()
	runtime.UnlockOSThread()
	return err
}
