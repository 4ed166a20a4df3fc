package ledger

// DefaultCap bounds how many processed event ids a row retains. Old entries
// are evicted FIFO, which keeps storage bounded while leaving a retry window
// far wider than any client backoff schedule.
const DefaultCap = 50

// Ledger is the bounded FIFO set of already-applied client event ids carried
// by a match or battle row. The check-then-append sequence must happen inside
// the same transaction as the state mutation it guards.
type Ledger []string

// Contains reports whether eventID was already applied.
func (l Ledger) Contains(eventID string) bool {
	for _, id := range l {
		if id == eventID {
			return true
		}
	}
	return false
}

// Record appends eventID, evicting the oldest entries beyond cap.
func (l Ledger) Record(eventID string, cap int) Ledger {
	if cap <= 0 {
		cap = DefaultCap
	}
	out := append(l, eventID)
	if len(out) > cap {
		out = out[len(out)-cap:]
	}
	return out
}
