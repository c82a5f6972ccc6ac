package ledger

// Observer receives ledger events for instrumentation. Calls may happen
// while the ledger lock is held, so implementations must not call back
// into the Ledger.
type Observer interface {
	ActiveSessions(n int)
	TrackedUsers(n int)
	Folded(seconds float64)
	Flushed(err error)
}

type nopObserver struct{}

func (nopObserver) ActiveSessions(int) {}
func (nopObserver) TrackedUsers(int)   {}
func (nopObserver) Folded(float64)     {}
func (nopObserver) Flushed(error)      {}
