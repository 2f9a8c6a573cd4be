package dialogue

import (
	"testing"
	"time"
)

func TestTeeTextDeliversBothSidesEveryChunk(t *testing.T) {
	in := make(chan string)
	a, b := TeeText(in)

	go func() {
		in <- "hello"
		in <- " world"
		close(in)
	}()

	var gotA, gotB string
	for gotA != "hello world" {
		select {
		case chunk, ok := <-a:
			if !ok {
				a = nil
				continue
			}
			gotA += chunk
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for side A")
		}
		if a == nil {
			break
		}
	}

	for gotB != "hello world" {
		select {
		case chunk, ok := <-b:
			if !ok {
				b = nil
				continue
			}
			gotB += chunk
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for side B")
		}
		if b == nil {
			break
		}
	}

	if gotA != "hello world" || gotB != "hello world" {
		t.Fatalf("got A=%q B=%q", gotA, gotB)
	}
}

func TestTeeTextSlowConsumerDoesNotBlockFastOne(t *testing.T) {
	in := make(chan string)
	fast, slow := TeeText(in)

	go func() {
		for i := 0; i < 50; i++ {
			in <- "x"
		}
		close(in)
	}()

	count := 0
	timeout := time.After(2 * time.Second)
	for count < 50 {
		select {
		case _, ok := <-fast:
			if !ok {
				t.Fatalf("fast side closed early at count=%d", count)
			}
			count++
		case <-timeout:
			t.Fatalf("fast side stalled behind slow consumer at count=%d", count)
		}
	}

	// Now drain the slow side; it should still have everything buffered.
	slowCount := 0
	for slowCount < 50 {
		select {
		case _, ok := <-slow:
			if !ok {
				t.Fatalf("slow side closed early at count=%d", slowCount)
			}
			slowCount++
		case <-time.After(2 * time.Second):
			t.Fatalf("slow side never delivered buffered chunks, got %d", slowCount)
		}
	}
}
