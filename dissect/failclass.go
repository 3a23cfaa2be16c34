package dissect

// MaxConsecutiveFailures is the safety rail in spec §4.1/§7: 10
// consecutive malformed frames of the same error class stop capture.
const MaxConsecutiveFailures = 10

// FailureTracker counts consecutive occurrences of the same dissection
// error class and reports when the capture should stop.
type FailureTracker struct {
	lastErr error
	streak  int
}

// Observe records err (nil on success) and returns true once the same
// non-nil error class has recurred MaxConsecutiveFailures times in a
// row. Any success, or a different error class, resets the streak.
func (t *FailureTracker) Observe(err error) bool {
	if err == nil {
		t.lastErr = nil
		t.streak = 0
		return false
	}
	if t.lastErr != nil && sameClass(t.lastErr, err) {
		t.streak++
	} else {
		t.lastErr = err
		t.streak = 1
	}
	return t.streak >= MaxConsecutiveFailures
}

// Streak returns the current consecutive-failure count.
func (t *FailureTracker) Streak() int { return t.streak }

func sameClass(a, b error) bool {
	// The dissector's errors are package-level sentinels compared by
	// identity; wrapped errors from other layers fall back to message
	// equality so the tracker still groups repeats of the same fault.
	if a == b {
		return true
	}
	return a.Error() == b.Error()
}
