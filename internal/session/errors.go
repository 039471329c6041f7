package session

// errSessionNotFound signals an unknown session id.
type errSessionNotFound struct{ id string }

func (e errSessionNotFound) Error() string { return "session not found: " + e.id }

// IsNotFound reports whether err indicates a missing session.
func IsNotFound(err error) bool {
	_, ok := err.(errSessionNotFound)
	return ok
}

// errSessionClosed signals an append against a closed session. This is a
// programming-contract error reported synchronously, never retried.
type errSessionClosed struct{ id string }

func (e errSessionClosed) Error() string { return "session closed: " + e.id }

// IsClosed reports whether err indicates a closed session.
func IsClosed(err error) bool {
	_, ok := err.(errSessionClosed)
	return ok
}

// errNoUserTurn signals a regenerate on a session without a user turn.
type errNoUserTurn struct{ id string }

func (e errNoUserTurn) Error() string { return "no user turn to regenerate: " + e.id }

// IsNoUserTurn reports whether err indicates an empty regenerate target.
func IsNoUserTurn(err error) bool {
	_, ok := err.(errNoUserTurn)
	return ok
}
