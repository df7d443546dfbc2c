package orchestrator

import "testing"

func TestDeviceLocks(t *testing.T) {
	l := newDeviceLocks()

	if !l.TryAcquire("r1") {
		t.Fatal("TryAcquire(r1) = false on free lock")
	}
	if l.TryAcquire("r1") {
		t.Error("TryAcquire(r1) = true while held")
	}
	if !l.TryAcquire("r2") {
		t.Error("TryAcquire(r2) = false, locks must be per device")
	}
	if !l.Held("r1") {
		t.Error("Held(r1) = false while held")
	}

	l.Release("r1")
	if l.Held("r1") {
		t.Error("Held(r1) = true after release")
	}
	if !l.TryAcquire("r1") {
		t.Error("TryAcquire(r1) = false after release")
	}
}
