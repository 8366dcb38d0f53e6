// Copyright 2026 The RqCore Authors
// SPDX-License-Identifier: Apache-2.0

package deploy

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gyantal/RqCore/lib/clock"
	"github.com/gyantal/RqCore/lib/tmux"
)

// SessionState is the observed state of the reserved session name.
type SessionState int

const (
	// Absent: no session with the reserved name exists.
	Absent SessionState = iota
	// Detached: the session exists and no client is attached.
	Detached
	// Attached: the session exists and an operator is attached.
	Attached
)

func (s SessionState) String() string {
	switch s {
	case Absent:
		return "absent"
	case Detached:
		return "detached"
	case Attached:
		return "attached"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// SessionSupervisor manages the lifecycle of the named tmux session
// hosting the service. At most one session with the reserved name may
// exist; before promotion the old one must be terminated so two
// instances never contend for the same listening port.
type SessionSupervisor struct {
	server       *tmux.Server
	name         string
	clock        clock.Clock
	readyTimeout time.Duration
	readyPoll    time.Duration
	logger       *slog.Logger
}

// NewSessionSupervisor returns a supervisor for the reserved session
// name. readyTimeout bounds the wait after Create for the session's
// shell to accept input; readyPoll is the poll interval.
func NewSessionSupervisor(server *tmux.Server, name string, clk clock.Clock,
	readyTimeout, readyPoll time.Duration, logger *slog.Logger) *SessionSupervisor {
	return &SessionSupervisor{
		server:       server,
		name:         name,
		clock:        clk,
		readyTimeout: readyTimeout,
		readyPoll:    readyPoll,
		logger:       logger,
	}
}

// Name returns the reserved session name.
func (s *SessionSupervisor) Name() string { return s.name }

// Find reports the state of the reserved session name. More than one
// exact match produces a *SessionError with SessionAmbiguous — tmux
// itself keeps names unique per server, but a confused enumeration is
// exactly the condition under which termination must not be trusted.
func (s *SessionSupervisor) Find() (SessionState, error) {
	names, err := s.server.ListSessions()
	if err != nil {
		return Absent, fmt.Errorf("listing sessions: %w", err)
	}

	matches := 0
	for _, name := range names {
		if name == s.name {
			matches++
		}
	}
	switch {
	case matches == 0:
		return Absent, nil
	case matches > 1:
		return Absent, &SessionError{Kind: SessionAmbiguous, Name: s.name}
	}

	attached, err := s.server.SessionAttached(s.name)
	if err != nil {
		return Absent, fmt.Errorf("checking session attachment: %w", err)
	}
	if attached {
		return Attached, nil
	}
	return Detached, nil
}

// Terminate stops the old instance. An absent session is a no-op. An
// attached session is never killed (an operator is watching it) and
// aborts the run instead. After the kill, the session's absence is
// verified; failure to confirm is fatal.
func (s *SessionSupervisor) Terminate() error {
	state, err := s.Find()
	if err != nil {
		return err
	}

	switch state {
	case Absent:
		s.logger.Info("no existing session to terminate", "session", s.name)
		return nil
	case Attached:
		return &SessionError{Kind: SessionAttached, Name: s.name}
	}

	if err := s.server.KillSession(s.name); err != nil {
		return &SessionError{Kind: SessionTerminateUnconfirmed, Name: s.name, Err: err}
	}
	if s.server.HasSession(s.name) {
		return &SessionError{Kind: SessionTerminateUnconfirmed, Name: s.name}
	}

	s.logger.Info("old session terminated", "session", s.name)
	return nil
}

// Create makes a fresh detached session under the reserved name and
// waits for its shell to become ready for input. A name collision
// produces SessionCollision; readiness-poll exhaustion produces
// SessionNotReady.
func (s *SessionSupervisor) Create() error {
	if s.server.HasSession(s.name) {
		return &SessionError{Kind: SessionCollision, Name: s.name}
	}

	if err := s.server.NewSession(s.name); err != nil {
		return fmt.Errorf("creating session %q: %w", s.name, err)
	}

	if err := s.waitReady(); err != nil {
		return err
	}
	s.logger.Info("session created", "session", s.name)
	return nil
}

// waitReady polls the pane until it reports a running command (the
// interactive shell), replacing the fixed post-create sleep with an
// observable readiness check against tmux's own status.
func (s *SessionSupervisor) waitReady() error {
	deadline := s.clock.Now().Add(s.readyTimeout)
	for {
		command, err := s.server.PaneCurrentCommand(s.name)
		if err == nil && command != "" {
			return nil
		}
		if !s.clock.Now().Before(deadline) {
			return &SessionError{Kind: SessionNotReady, Name: s.name, Err: err}
		}
		s.clock.Sleep(s.readyPoll)
	}
}

// StartCommand injects a directory change to workdir followed by the
// command line into the session, then returns without waiting — the
// invoked process is the long-running service itself, and ownership
// passes to the tmux server.
func (s *SessionSupervisor) StartCommand(workdir, commandLine string) error {
	line := fmt.Sprintf("cd %q && %s", workdir, commandLine)
	if err := s.server.SendLine(s.name, line); err != nil {
		return fmt.Errorf("injecting startup command into %q: %w", s.name, err)
	}
	s.logger.Info("startup command injected",
		"session", s.name,
		"workdir", workdir,
		"command", commandLine,
	)
	return nil
}
