package models

import "time"

// UploadRun is one invocation of the upload coordinator, recorded in the
// local operational journal.
type UploadRun struct {
	ID           int64      `json:"id" db:"id"`
	StartedAt    time.Time  `json:"started_at" db:"started_at"`
	FinishedAt   *time.Time `json:"finished_at" db:"finished_at"`
	Entries      int        `json:"entries" db:"entries"`
	Uploaded     int        `json:"uploaded" db:"uploaded"`
	Failed       int        `json:"failed" db:"failed"`
	ErrorMessage string     `json:"error_message" db:"error_message"`
}

type AuthEventKind string

const (
	AuthEventSignIn  AuthEventKind = "sign_in"
	AuthEventSignOut AuthEventKind = "sign_out"
	AuthEventRefresh AuthEventKind = "refresh"
	AuthEventError   AuthEventKind = "error"
)

// AuthEvent is a journal entry for an auth-provider state change.
type AuthEvent struct {
	ID        int64         `json:"id" db:"id"`
	Timestamp time.Time     `json:"timestamp" db:"timestamp"`
	Kind      AuthEventKind `json:"kind" db:"kind"`
	UID       string        `json:"uid" db:"uid"`
	Detail    string        `json:"detail" db:"detail"`
}
