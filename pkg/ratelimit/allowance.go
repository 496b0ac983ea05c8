package ratelimit

import "sync"

// Allowance counts paid downloads in the current run against a fixed
// ceiling. It is reset only by process start; the server tracks the real
// daily quota.
type Allowance struct {
	limit int
	used  int
	mu    sync.Mutex
}

// NewAllowance creates a counter with the given ceiling.
func NewAllowance(limit int) *Allowance {
	return &Allowance{limit: limit}
}

// Take consumes one unit, reporting false when the ceiling is reached.
func (a *Allowance) Take() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.used >= a.limit {
		return false
	}
	a.used++
	return true
}

// Used returns the number of units consumed so far.
func (a *Allowance) Used() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.used
}

// Remaining returns the units left before the ceiling.
func (a *Allowance) Remaining() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.limit - a.used
}

// Observe adopts a server-reported usage count when it exceeds the local
// one, so a run that shares the account with other clients stops early.
func (a *Allowance) Observe(serverUsed int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if serverUsed > a.used {
		a.used = serverUsed
		if a.used > a.limit {
			a.used = a.limit
		}
	}
}
