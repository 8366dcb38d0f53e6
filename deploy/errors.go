// Copyright 2026 The RqCore Authors
// SPDX-License-Identifier: Apache-2.0

package deploy

import "fmt"

// SyncError reports that the staging tree could not be synchronized:
// the remote was unreachable, or the tree was dirty or diverged. It is
// never auto-resolved — the run aborts and the condition is surfaced.
type SyncError struct {
	Output string
	Err    error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("syncing staging tree: %v", e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// BuildError reports a failed build. Output carries the captured
// combined build output. A build failure is fatal for the run but
// leaves the running instance untouched.
type BuildError struct {
	Output string
	Err    error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build failed: %v", e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// TestError reports a failed test gate after a successful build. Same
// no-promotion consequence as BuildError.
type TestError struct {
	Output string
	Err    error
}

func (e *TestError) Error() string {
	return fmt.Sprintf("tests failed: %v", e.Err)
}

func (e *TestError) Unwrap() error { return e.Err }

// SessionErrorKind classifies session supervision failures.
type SessionErrorKind int

const (
	// SessionAmbiguous: the reserved name matched more than one
	// session. Terminating "the" old instance is no longer
	// well-defined, so the run aborts rather than risk leaving a
	// second instance contending for the listening port.
	SessionAmbiguous SessionErrorKind = iota

	// SessionAttached: the matched session has a client attached.
	// Policy is to never kill a session an operator is watching, so
	// the run aborts instead.
	SessionAttached

	// SessionTerminateUnconfirmed: the kill was issued but the
	// session still exists. Starting a new instance now could double
	// up on the listening port.
	SessionTerminateUnconfirmed

	// SessionCollision: create found the reserved name already in
	// use. The caller must terminate first.
	SessionCollision

	// SessionNotReady: the new session's shell did not become ready
	// for input within the bounded wait, so no startup command was
	// injected.
	SessionNotReady
)

func (k SessionErrorKind) String() string {
	switch k {
	case SessionAmbiguous:
		return "ambiguous match"
	case SessionAttached:
		return "session attached"
	case SessionTerminateUnconfirmed:
		return "termination unconfirmed"
	case SessionCollision:
		return "name collision"
	case SessionNotReady:
		return "session not ready"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// SessionError reports a session supervision failure. All kinds are
// fatal for the run.
type SessionError struct {
	Kind SessionErrorKind
	Name string
	Err  error
}

func (e *SessionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("session %q: %s: %v", e.Name, e.Kind, e.Err)
	}
	return fmt.Sprintf("session %q: %s", e.Name, e.Kind)
}

func (e *SessionError) Unwrap() error { return e.Err }

// RotateErrorKind classifies rotation failures.
type RotateErrorKind int

const (
	// StagingMissing: the staging tree does not exist. Nothing has
	// been moved yet.
	StagingMissing RotateErrorKind = iota

	// ProductionMissing: the production directory was already absent.
	// Indicates a prior inconsistent state; requires operator
	// intervention. Nothing has been moved.
	ProductionMissing

	// BackupFailed: creating the dated backup failed while the old
	// production directory was still intact — removing a same-day
	// backup, the rename itself, or the cross-filesystem copy before
	// its verification. Nothing has been moved; a rollback here would
	// clobber a live production tree.
	BackupFailed

	// CopyFailed: the failure happened after the old production
	// directory was moved aside — repopulating production from
	// staging, or deleting the original behind a verified fallback
	// copy. Only re-promoting the backup leaves a startable tree.
	CopyFailed
)

func (k RotateErrorKind) String() string {
	switch k {
	case StagingMissing:
		return "staging missing"
	case ProductionMissing:
		return "production missing"
	case BackupFailed:
		return "backup failed"
	case CopyFailed:
		return "copy failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// RotateError reports a directory rotation failure. Path is the
// directory the failure concerns.
type RotateError struct {
	Kind RotateErrorKind
	Path string
	Err  error
}

func (e *RotateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rotation: %s (%s): %v", e.Kind, e.Path, e.Err)
	}
	return fmt.Sprintf("rotation: %s (%s)", e.Kind, e.Path)
}

func (e *RotateError) Unwrap() error { return e.Err }
