package orders

type Status string

const (
	StatusPending   Status = "Pending"
	StatusDelivered Status = "Delivered"
	StatusCancelled Status = "Cancelled"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusDelivered: true, StatusCancelled: true},
	StatusDelivered: {},
	StatusCancelled: {},
}

// ParseStatus matches the token case-sensitively and rejects anything else.
func ParseStatus(token string) (Status, error) {
	s := Status(token)
	if _, ok := validNext[s]; !ok {
		return "", &ValidationError{Field: "status", Reason: "unknown status " + quote(token)}
	}
	return s, nil
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

func (s Status) Terminal() bool {
	return s.Valid() && len(validNext[s]) == 0
}

// CanTransition reports whether from -> to is a real state change the
// machine allows. Same-state re-application is handled by callers.
func CanTransition(from, to Status) bool {
	return validNext[from][to]
}
