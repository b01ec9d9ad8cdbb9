package gate

// State of an authorization watch.
type State int

const (
	Loading State = iota
	Authorized
	Denied
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Authorized:
		return "authorized"
	case Denied:
		return "denied"
	}
	return "unknown"
}
