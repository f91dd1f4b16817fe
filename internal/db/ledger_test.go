// streamline - in-process data pipeline runtime for simulation telemetry
// SPDX-License-Identifier: AGPL-3.0-or-later

package db

import (
	"path/filepath"
	"testing"
)

func TestLedger_SeenMarkRoundTrip(t *testing.T) {
	l, err := openLedger(filepath.Join(t.TempDir(), "ledger"))
	if err != nil {
		t.Fatal(err)
	}
	defer l.close()

	seen, err := l.seen("run-x:1000-1999")
	if err != nil {
		t.Fatal(err)
	}
	if seen {
		t.Fatal("want unseen before mark")
	}

	if err := l.mark("run-x:1000-1999"); err != nil {
		t.Fatal(err)
	}

	seen, err = l.seen("run-x:1000-1999")
	if err != nil {
		t.Fatal(err)
	}
	if !seen {
		t.Fatal("want seen after mark")
	}
}

func TestLedger_DistinctIdentitiesIndependent(t *testing.T) {
	l, err := openLedger(filepath.Join(t.TempDir(), "ledger"))
	if err != nil {
		t.Fatal(err)
	}
	defer l.close()

	_ = l.mark("a")
	seenA, _ := l.seen("a")
	seenB, _ := l.seen("b")
	if !seenA || seenB {
		t.Fatalf("want a=true b=false, got a=%v b=%v", seenA, seenB)
	}
}
