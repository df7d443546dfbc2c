package orchestrator

import "sync"

// deviceLocks enforces at most one in-flight attempt per device within this
// process. Acquisition never blocks: a busy device is a rejection, not a
// queue.
type deviceLocks struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
}

func newDeviceLocks() *deviceLocks {
	return &deviceLocks{inFlight: make(map[string]struct{})}
}

// TryAcquire reserves the device, returning false when an attempt already
// holds it.
func (l *deviceLocks) TryAcquire(deviceID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.inFlight[deviceID]; busy {
		return false
	}
	l.inFlight[deviceID] = struct{}{}
	return true
}

// Release frees the device for the next attempt.
func (l *deviceLocks) Release(deviceID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.inFlight, deviceID)
}

// Held reports whether an attempt currently holds the device.
func (l *deviceLocks) Held(deviceID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, busy := l.inFlight[deviceID]
	return busy
}
