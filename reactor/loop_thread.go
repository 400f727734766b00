// File: reactor/loop_thread.go
// Author grounding: original_source/src/net/eventloop_thread.h/.cpp
// (EventLoopThread: condition-variable handoff between the starting
// goroutine and the new EventLoop's own goroutine). Go has no
// Condition/MutexLock pair to mirror directly; a buffered channel plays
// the same "wait until loop_ is set" role idiomatically.

package reactor

// LoopThread owns one goroutine running its own EventLoop. StartLoop
// blocks the caller until that EventLoop exists and is ready to accept
// RunInLoop/QueueInLoop calls.
type LoopThread struct {
	name     string
	initFunc func(*EventLoop)
	loop     *EventLoop
	ready    chan *EventLoop
	done     chan struct{}
}

// NewLoopThread constructs a LoopThread. init, if non-nil, runs on the new
// EventLoop's own goroutine before it starts looping, mirroring
// original_source's ThreadInitCallback.
func NewLoopThread(name string, init func(*EventLoop)) *LoopThread {
	return &LoopThread{
		name:     name,
		initFunc: init,
		ready:    make(chan *EventLoop, 1),
		done:     make(chan struct{}),
	}
}

// StartLoop spawns the goroutine and waits for its EventLoop to be
// constructed, returning it for the caller to dispatch work onto.
func (t *LoopThread) StartLoop() (*EventLoop, error) {
	errCh := make(chan error, 1)
	go t.run(errCh)

	select {
	case err := <-errCh:
		return nil, err
	case loop := <-t.ready:
		t.loop = loop
		return loop, nil
	}
}

func (t *LoopThread) run(errCh chan error) {
	loop, err := NewEventLoop()
	if err != nil {
		errCh <- err
		return
	}

	if t.initFunc != nil {
		t.initFunc(loop)
	}

	t.ready <- loop
	loop.Run()
	loop.Close()
	close(t.done)
}

// Name returns the label this thread was constructed with.
func (t *LoopThread) Name() string { return t.name }

// Stop quits the owned loop and blocks until its goroutine has returned.
func (t *LoopThread) Stop() {
	if t.loop == nil {
		return
	}
	t.loop.Quit()
	<-t.done
}
