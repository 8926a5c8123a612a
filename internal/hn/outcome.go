package hn

import "errors"

// OutcomeStatus is what happened to a single item handed to the writer.
type OutcomeStatus string

const (
	OutcomeCreated       OutcomeStatus = "created"
	OutcomeAlreadyExists OutcomeStatus = "exists"
	OutcomeRejected      OutcomeStatus = "rejected"
)

// RejectReason says why an item was rejected.
type RejectReason string

const (
	ReasonUnknownType    RejectReason = "unknown_type"
	ReasonSchemaMismatch RejectReason = "schema_mismatch"
	ReasonStorageError   RejectReason = "storage_error"
)

type Outcome struct {
	Status OutcomeStatus
	Reason RejectReason // Only set when rejected
	Err    error
}

func Created() Outcome       { return Outcome{Status: OutcomeCreated} }
func AlreadyExists() Outcome { return Outcome{Status: OutcomeAlreadyExists} }

// Rejected builds a rejection, picking the reason from the error.
func Rejected(err error) Outcome {
	reason := ReasonStorageError
	switch {
	case errors.Is(err, ErrUnknownType):
		reason = ReasonUnknownType
	case errors.Is(err, ErrSchemaMismatch):
		reason = ReasonSchemaMismatch
	}

	return Outcome{Status: OutcomeRejected, Reason: reason, Err: err}
}
