package controlplane

import (
	"testing"
	"time"
)

func TestTimeoutMutexLockUnlock(t *testing.T) {
	m := newTimeoutMutex()
	if !m.tryLock(time.Millisecond) {
		t.Fatal("expected an uncontended lock to succeed")
	}
	m.unlock()
	if !m.tryLock(time.Millisecond) {
		t.Fatal("expected the lock to be reacquirable after unlock")
	}
}

func TestTimeoutMutexTimesOutWhenHeld(t *testing.T) {
	m := newTimeoutMutex()
	if !m.tryLock(time.Millisecond) {
		t.Fatal("expected the first lock to succeed")
	}

	if m.tryLock(5 * time.Millisecond) {
		t.Error("expected tryLock to fail while the mutex is held")
	}
}
