package core

import (
	"testing"
	"time"
)

const eventWait = 2 * time.Second

// mustEvent drains ch until an event of the given kind shows up. Other kinds
// are skipped and listed in the failure message.
func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	timeout := time.NewTimer(eventWait)
	defer timeout.Stop()

	var skipped []EventKind
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("events closed while waiting for %v (skipped %v)", kind, skipped)
			}
			if ev != nil && ev.Kind == kind {
				return ev
			}
			if ev != nil {
				skipped = append(skipped, ev.Kind)
			}
		case <-timeout.C:
			t.Fatalf("no %v event within %v (skipped %v)", kind, eventWait, skipped)
			return nil
		}
	}
}
