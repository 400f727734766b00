// File: reactor/loop_pool.go
// Author grounding: original_source/src/net/eventloop_thread_pool.h/.cpp
// (round-robin getNextLoop/getAllLoops, fallback to baseLoop when
// numThreads_ == 0).

package reactor

import "fmt"

// LoopPool manages the sub-reactor EventLoops that a Server round-robins
// new connections across. With zero threads configured, the base loop
// itself absorbs all connection I/O, matching the single-reactor mode
// original_source falls back to when numThreads_ == 0.
type LoopPool struct {
	baseLoop *EventLoop
	name     string
	started  bool
	numLoops int
	next     int
	threads  []*LoopThread
	loops    []*EventLoop
}

// NewLoopPool constructs a pool whose fallback loop (used when NumLoops
// is left at zero) is baseLoop.
func NewLoopPool(baseLoop *EventLoop, name string) *LoopPool {
	return &LoopPool{baseLoop: baseLoop, name: name}
}

// SetNumLoops configures how many sub-reactor loops Start spawns. Must be
// called before Start.
func (p *LoopPool) SetNumLoops(n int) { p.numLoops = n }

// Start spawns NumLoops LoopThreads, each running its own EventLoop. init,
// if non-nil, runs on every spawned EventLoop's own goroutine before it
// starts looping. Idempotent: a second call is a no-op.
func (p *LoopPool) Start(init func(*EventLoop)) error {
	if p.started {
		return nil
	}
	p.started = true

	for i := 0; i < p.numLoops; i++ {
		name := fmt.Sprintf("%s%d", p.name, i)
		t := NewLoopThread(name, init)
		loop, err := t.StartLoop()
		if err != nil {
			return fmt.Errorf("reactor: loop pool %q thread %d: %w", p.name, i, err)
		}
		p.threads = append(p.threads, t)
		p.loops = append(p.loops, loop)
	}

	if p.numLoops == 0 && init != nil {
		init(p.baseLoop)
	}
	return nil
}

// GetNextLoop returns the next sub-reactor loop in round-robin order, or
// the base loop if no sub-reactors were configured. Must be called from
// the base loop's own goroutine.
func (p *LoopPool) GetNextLoop() *EventLoop {
	p.baseLoop.AssertInLoopGoroutine()

	if len(p.loops) == 0 {
		return p.baseLoop
	}
	loop := p.loops[p.next]
	p.next = (p.next + 1) % len(p.loops)
	return loop
}

// GetAllLoops returns every sub-reactor loop, or a single-element slice
// holding the base loop if no sub-reactors were configured.
func (p *LoopPool) GetAllLoops() []*EventLoop {
	p.baseLoop.AssertInLoopGoroutine()

	if len(p.loops) == 0 {
		return []*EventLoop{p.baseLoop}
	}
	return p.loops
}

// Started reports whether Start has run.
func (p *LoopPool) Started() bool { return p.started }

// Name returns the pool's label, used to derive per-loop thread names.
func (p *LoopPool) Name() string { return p.name }

// Stop quits every sub-reactor loop and waits for its goroutine to exit.
// The base loop is left running; its owner is responsible for it.
func (p *LoopPool) Stop() {
	for _, t := range p.threads {
		t.Stop()
	}
}
