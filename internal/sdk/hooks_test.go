package sdk

import (
	"testing"
	"time"
)

func TestHookRunnerKeepsOrderAndDrainsOnClose(t *testing.T) {
	h := newHookRunner()
	got := make(chan int, 100)
	for i := 0; i < 50; i++ {
		i := i
		h.post(func() { got <- i })
	}
	stopped := make(chan struct{})
	go func() {
		h.run()
		close(stopped)
	}()
	for i := 50; i < 100; i++ {
		i := i
		h.post(func() { got <- i })
	}
	h.close()
	h.post(func() { got <- -1 })

	select {
	case <-stopped:
	case <-time.After(3 * time.Second):
		t.Fatalf("runner did not stop after close")
	}
	close(got)
	want := 0
	for v := range got {
		if v != want {
			t.Fatalf("hook %d ran at position %d", v, want)
		}
		want++
	}
	if want != 100 {
		t.Fatalf("expected 100 hooks, ran %d", want)
	}
}
