package services

import "errors"

var (
	// ErrNotFound is returned when a serial has no loading session or the addressed row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadySplit is returned when unique serials were already generated for a serial.
	ErrAlreadySplit = errors.New("unique serials already generated")

	// ErrSequenceExhausted is returned when no free sequence number was found within the attempt limit.
	ErrSequenceExhausted = errors.New("serial sequence exhausted")

	// ErrPartialMigration is returned when parent and indent headers of a serial coexist
	// or a split job stopped before all indents migrated.
	ErrPartialMigration = errors.New("partial migration")

	// ErrSplitInProgress is returned when another split of the same serial is running.
	ErrSplitInProgress = errors.New("split already in progress")

	// ErrNoIndents is returned when a unique split finds no indent numbers.
	ErrNoIndents = errors.New("no indent numbers to split")

	// ErrInvalidSerial is returned for malformed serial numbers.
	ErrInvalidSerial = errors.New("invalid serial")

	// ErrInvalidTransition is returned when a workflow step is not allowed from the current status.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrNotAssignee is returned when a reviewer acts on a task assigned to someone else.
	ErrNotAssignee = errors.New("assigned to another reviewer")
)
