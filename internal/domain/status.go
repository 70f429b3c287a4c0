package domain

// DepositStatus is the single authoritative lifecycle field of a Deposit.
//
//	pending -> pending_payment -> completed | failed | cancelled
//
// The three right-hand states are terminal.
type DepositStatus string

const (
	StatusPending        DepositStatus = "pending"
	StatusPendingPayment DepositStatus = "pending_payment"
	StatusCompleted      DepositStatus = "completed"
	StatusFailed         DepositStatus = "failed"
	StatusCancelled      DepositStatus = "cancelled"
)

// transitions lists, for every target status, the statuses it may be reached from.
var transitions = map[DepositStatus][]DepositStatus{
	StatusPendingPayment: {StatusPending},
	StatusCompleted:      {StatusPendingPayment},
	StatusFailed:         {StatusPendingPayment},
	StatusCancelled:      {StatusPendingPayment},
}

// Valid reports whether s is one of the known statuses.
func (s DepositStatus) Valid() bool {
	switch s {
	case StatusPending, StatusPendingPayment, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no transition may leave s.
func (s DepositStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Predecessors returns the statuses from which to is legally reachable.
// The result is empty for pending, which is only ever assigned at insert.
func Predecessors(to DepositStatus) []DepositStatus {
	from := transitions[to]
	out := make([]DepositStatus, len(from))
	copy(out, from)
	return out
}

// CanTransition reports whether the edge from -> to is legal.
func CanTransition(from, to DepositStatus) bool {
	for _, p := range transitions[to] {
		if p == from {
			return true
		}
	}
	return false
}
