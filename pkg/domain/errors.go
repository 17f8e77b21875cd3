package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrKindNotFound is returned by registry lookups for unknown kinds.
	ErrKindNotFound = errors.New("node kind not found")

	// ErrDuplicateKind is returned when registering an already known kind.
	ErrDuplicateKind = errors.New("node kind already registered")

	// ErrNoOutputs is returned when registering a non-terminal descriptor
	// with zero outputs.
	ErrNoOutputs = errors.New("non-terminal node kind must declare outputs")
)

// ValidationError aggregates the structural defects of a graph document.
// It is raised before execution and never retried.
type ValidationError struct {
	GraphName string
	Issues    []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("graph %q invalid: %s", e.GraphName, strings.Join(e.Issues, "; "))
}

// NodeExecutionError wraps a collaborator execution failure for one node.
type NodeExecutionError struct {
	NodeID   int
	NodeType string
	Err      error
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("node %d (%s) failed: %v", e.NodeID, e.NodeType, e.Err)
}

func (e *NodeExecutionError) Unwrap() error { return e.Err }

// TimeoutError indicates a run exceeded its wall-clock budget. It is
// terminal; in-flight collaborator work is cancelled cooperatively.
type TimeoutError struct {
	Budget time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("execution exceeded %s budget", e.Budget)
}

// CancellationError indicates a cooperative abort. It is not a failure; the
// stream reports it with its own frame kind.
type CancellationError struct {
	Reason string
}

func (e *CancellationError) Error() string {
	if e.Reason == "" {
		return "execution cancelled"
	}
	return fmt.Sprintf("execution cancelled: %s", e.Reason)
}

// RegistryError indicates a graph references a node kind the registry does
// not know. It is a validation-time defect.
type RegistryError struct {
	Kind string
}

func (e *RegistryError) Error() string {
	return fmt.Sprintf("unknown node kind %q", e.Kind)
}

func (e *RegistryError) Unwrap() error { return ErrKindNotFound }
