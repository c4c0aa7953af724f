package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific ID types
type (
	RunID  ID
	TaskID ID
	DAGID  ID
)

// String conversions for domain IDs
func (id RunID) String() string  { return ID(id).String() }
func (id TaskID) String() string { return ID(id).String() }
func (id DAGID) String() string  { return ID(id).String() }

// NewRunID creates a time-ordered run identifier
func NewRunID() RunID {
	return RunID(NewID())
}

// ParseRunID parses a string into RunID. Run ids name files, so separators are rejected.
func ParseRunID(s string) (RunID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%w: run ID cannot be empty", ErrInvalidArgument)
	}
	if strings.ContainsAny(s, `/\`) || strings.Contains(s, "..") {
		return "", fmt.Errorf("%w: run ID %q contains a path separator", ErrInvalidArgument, s)
	}
	return RunID(s), nil
}

// ParseTaskID parses a string into TaskID
func ParseTaskID(s string) (TaskID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("task ID cannot be empty")
	}
	return TaskID(s), nil
}
