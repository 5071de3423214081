package auth

// State is a node of the login state machine.
type State int

const (
	StateLoggedOut State = iota
	StateCookieAttempted
	StateCredentialAttempted
	StateChallengeDetected
	StateLoggedIn
	StateLoginFailed
)

func (s State) String() string {
	switch s {
	case StateLoggedOut:
		return "logged_out"
	case StateCookieAttempted:
		return "cookie_attempted"
	case StateCredentialAttempted:
		return "credential_attempted"
	case StateChallengeDetected:
		return "challenge_detected"
	case StateLoggedIn:
		return "logged_in"
	case StateLoginFailed:
		return "login_failed"
	}
	return "unknown"
}

// Terminal reports whether s ends a Login call.
func (s State) Terminal() bool {
	return s == StateLoggedIn || s == StateLoginFailed
}
