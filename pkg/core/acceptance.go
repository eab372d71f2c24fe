package core

// AcceptanceState is the ledger's answer to a broadcast.
type AcceptanceState int

const (
	AcceptanceSuccess AcceptanceState = iota
	AcceptanceStatusError
	AcceptanceUnknownError
)

func (s AcceptanceState) String() string {
	switch s {
	case AcceptanceSuccess:
		return "success"
	case AcceptanceStatusError:
		return "status_error"
	case AcceptanceUnknownError:
		return "unknown_error"
	}
	return "unknown_error"
}
