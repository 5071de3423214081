package auth

import "errors"

var (
	// ErrLoginFailed is returned when no strategy produced a logged-in page.
	ErrLoginFailed = errors.New("login failed")
	// ErrManualIntervention accompanies ErrLoginFailed when a security
	// challenge needs a human.
	ErrManualIntervention = errors.New("manual intervention required")
	// ErrNoCredentials is returned when the account or secret is empty.
	ErrNoCredentials = errors.New("credentials are not configured")
)
