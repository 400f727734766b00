package reactor_test

import (
	"testing"
	"time"

	"github.com/Lucky-mi/reactorkv/reactor"
)

func TestRunInLoopExecutesSynchronouslyOnOwnGoroutine(t *testing.T) {
	loop, err := reactor.NewEventLoop()
	if err != nil {
		t.Fatalf("NewEventLoop: %v", err)
	}
	defer loop.Close()

	ran := false
	loop.RunInLoop(func() { ran = true })
	if !ran {
		t.Fatal("RunInLoop did not execute synchronously before Run was ever called")
	}
}

func TestQueueInLoopRunsDuringRun(t *testing.T) {
	thread := reactor.NewLoopThread("test", nil)
	loop, err := thread.StartLoop()
	if err != nil {
		t.Fatalf("StartLoop: %v", err)
	}
	defer thread.Stop()

	result := make(chan int, 1)
	loop.QueueInLoop(func() {
		result <- 42
		loop.Quit()
	})

	select {
	case got := <-result:
		if got != 42 {
			t.Fatalf("queued functor ran with wrong value: %d", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for queued functor to run")
	}
}

func TestAssertInLoopGoroutinePanicsOffLoop(t *testing.T) {
	thread := reactor.NewLoopThread("test", nil)
	loop, err := thread.StartLoop()
	if err != nil {
		t.Fatalf("StartLoop: %v", err)
	}
	defer thread.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for !loop.IsLooping() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !loop.IsLooping() {
		t.Fatal("timed out waiting for Run to start looping")
	}

	defer func() {
		if recover() == nil {
			t.Fatal("AssertInLoopGoroutine did not panic when called off the loop goroutine")
		}
	}()
	loop.AssertInLoopGoroutine()
}
