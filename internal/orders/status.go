package orders

import "github.com/ariefcatur/go-stock-ledger/internal/apperr"

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPaid      Status = "PAID"
	StatusCancelled Status = "CANCELLED"
)

// PAID and CANCELLED are terminal.
var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusPaid: true, StatusCancelled: true},
	StatusPaid:      {},
	StatusCancelled: {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

func (s Status) Terminal() bool {
	return s.Valid() && len(validNext[s]) == 0
}

// ParseStatus accepts the empty string as "no filter".
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if s == "" || st.Valid() {
		return st, nil
	}
	return "", apperr.Validation("invalid status " + s)
}

func transitionError(from, to Status) error {
	return apperr.InvalidTransition("cannot move order from " + string(from) + " to " + string(to))
}
