package schemas

import "time"

// OperationType groups audit records by subsystem.
type OperationType string

const (
	OperationAuthentication OperationType = "authentication"
	OperationMarketplace    OperationType = "marketplace"
)

// Operation subtypes written to bot_operations.operation_subtype.
const (
	SubtypeLogin           = "login"
	SubtypeCookieLogin     = "cookie_login"
	SubtypeCredentialLogin = "credential_login"
	SubtypeChallengeCheck  = "challenge_check"
	SubtypeGetListings     = "get_listings"
	SubtypeRefreshListings = "refresh_listings"
)

// OperationStatus is the lifecycle state of an OperationRecord.
type OperationStatus string

const (
	OperationStarted   OperationStatus = "started"
	OperationCompleted OperationStatus = "completed"
	OperationFailed    OperationStatus = "failed"
	OperationError     OperationStatus = "error"
)

// Terminal reports whether no further transition is allowed from s.
func (s OperationStatus) Terminal() bool {
	return s == OperationCompleted || s == OperationFailed || s == OperationError
}

// OperationRecord is one row of the append-only audit trail. The only
// permitted mutation is the move from started to a terminal status.
type OperationRecord struct {
	ID               int64           `json:"id"`
	OperationType    OperationType   `json:"operation_type"`
	Subtype          string          `json:"operation_subtype"`
	Status           OperationStatus `json:"status"`
	ItemsProcessed   int             `json:"items_processed"`
	ItemsSuccessful  int             `json:"items_successful"`
	ItemsFailed      int             `json:"items_failed"`
	StartedAt        time.Time       `json:"start_time"`
	EndedAt          *time.Time      `json:"end_time,omitempty"`
	DurationSeconds  int             `json:"duration_seconds"`
	ErrorDetail      string          `json:"error_message,omitempty"`
	StackTrace       string          `json:"stack_trace,omitempty"`
	BrowserSessionID string          `json:"browser_session_id,omitempty"`
	UserAgent        string          `json:"user_agent,omitempty"`
}

// OperationResult carries the terminal fields applied when an operation
// finishes.
type OperationResult struct {
	Status          OperationStatus
	ItemsProcessed  int
	ItemsSuccessful int
	ItemsFailed     int
	EndedAt         time.Time
	DurationSeconds int
	ErrorDetail     string
	StackTrace      string
}
