// streamline - in-process data pipeline runtime for simulation telemetry
// SPDX-License-Identifier: AGPL-3.0-or-later

package binding

import (
	"context"
	"testing"
	"time"

	"github.com/evochora/streamline/internal/pipeline/channel"
)

func newTestAttachment(t *testing.T, name string, capacity int) *Attachment[int] {
	t.Helper()
	ch, err := channel.New[int](name, capacity)
	if err != nil {
		t.Fatal(err)
	}
	return NewAttachment("svc", "in", name, Input, ch, alwaysRunning{})
}

// TestFanIn_DrainsAllAttachments confirms every attachment wired to a
// fanned-in port is actually read, not just the first.
func TestFanIn_DrainsAllAttachments(t *testing.T) {
	a := newTestAttachment(t, "a", 4)
	b := newTestAttachment(t, "b", 4)
	c := newTestAttachment(t, "c", 4)

	ctx := context.Background()
	if err := a.Write(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if err := b.Write(ctx, 2); err != nil {
		t.Fatal(err)
	}
	if err := c.Write(ctx, 3); err != nil {
		t.Fatal(err)
	}

	fi := NewFanIn([]*Attachment[int]{a, b, c})

	seen := map[int]bool{}
	for i := 0; i < 3; i++ {
		msg, ok, err := fi.TryReadWithDeadline(ctx, 200*time.Millisecond)
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if !ok {
			t.Fatalf("read %d: want a message, got none", i)
		}
		seen[msg] = true
	}

	for _, want := range []int{1, 2, 3} {
		if !seen[want] {
			t.Errorf("want message %d to have been read, got %v", want, seen)
		}
	}
}

// TestFanIn_RoundRobinsInsertionOrder confirms that when every attachment
// always has a message ready, FanIn visits them in rotation rather than
// starving any one of them by always preferring the first.
func TestFanIn_RoundRobinsInsertionOrder(t *testing.T) {
	a := newTestAttachment(t, "a", 8)
	b := newTestAttachment(t, "b", 8)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := a.Write(ctx, 100+i); err != nil {
			t.Fatal(err)
		}
		if err := b.Write(ctx, 200+i); err != nil {
			t.Fatal(err)
		}
	}

	fi := NewFanIn([]*Attachment[int]{a, b})

	var fromA, fromB int
	for i := 0; i < 8; i++ {
		msg, ok, err := fi.TryReadWithDeadline(ctx, 200*time.Millisecond)
		if err != nil || !ok {
			t.Fatalf("read %d: ok=%v err=%v", i, ok, err)
		}
		if msg >= 100 && msg < 200 {
			fromA++
		} else {
			fromB++
		}
	}

	if fromA != 4 || fromB != 4 {
		t.Fatalf("want 4 messages from each attachment, got fromA=%d fromB=%d", fromA, fromB)
	}
}

// TestFanIn_TimeoutWhenAllEmpty confirms a fanned-in read reports the
// normal, expected no-message timeout (ok=false, err=nil) rather than
// blocking forever when nothing is ready on any attachment.
func TestFanIn_TimeoutWhenAllEmpty(t *testing.T) {
	a := newTestAttachment(t, "a", 1)
	b := newTestAttachment(t, "b", 1)
	fi := NewFanIn([]*Attachment[int]{a, b})

	start := time.Now()
	_, ok, err := fi.TryReadWithDeadline(context.Background(), 50*time.Millisecond)
	if err != nil {
		t.Fatalf("want no error on timeout, got %v", err)
	}
	if ok {
		t.Fatal("want ok=false when nothing is ready on any attachment")
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("want the call to honor the requested timeout, returned after %v", elapsed)
	}
}

// TestFanIn_CancelledContext confirms cancellation propagates from
// whichever attachment is being polled when ctx is done.
func TestFanIn_CancelledContext(t *testing.T) {
	a := newTestAttachment(t, "a", 1)
	fi := NewFanIn([]*Attachment[int]{a})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok, err := fi.TryReadWithDeadline(ctx, time.Second)
	if err == nil {
		t.Fatal("want a cancellation error")
	}
	if ok {
		t.Fatal("want ok=false on cancellation")
	}
}
