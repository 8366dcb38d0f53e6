// Copyright 2026 The RqCore Authors
// SPDX-License-Identifier: Apache-2.0

// Package tmux provides a typed interface to a tmux server. The
// deployment pipeline keeps the service process alive inside a named
// tmux session so that it survives the deploying process's exit; this
// package is the session supervisor's only path to that session.
//
// The central type is Server. With an empty socket path it targets the
// default tmux server, which is where operators expect to find the
// service session (`tmux attach -t rqcore`). Tests pass a dedicated
// socket path plus -f /dev/null so they never touch the operator's
// sessions or load ~/.tmux.conf.
package tmux

import (
	"fmt"
	"os/exec"
	"strings"
)

// Server represents a tmux server. socketPath selects the server via
// -S; empty means the default server for the current user.
type Server struct {
	socketPath string
	configFile string // passed as "-f <path>" on new-session; empty = tmux default
}

// NewServer returns a Server. configFile controls which configuration
// file tmux loads if the server is started by our first new-session
// call; pass "/dev/null" in tests to keep ~/.tmux.conf out of the
// picture.
func NewServer(socketPath, configFile string) *Server {
	return &Server{socketPath: socketPath, configFile: configFile}
}

// SocketPath returns the socket path, or "" for the default server.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// baseArgs returns the server-selection arguments prepended to every
// tmux invocation.
func (s *Server) baseArgs() []string {
	if s.socketPath == "" {
		return nil
	}
	return []string{"-S", s.socketPath}
}

// Run executes a tmux subcommand on this server and returns the
// combined output. Server-selection flags are prepended automatically;
// callers provide only the subcommand and its arguments.
func (s *Server) Run(args ...string) (string, error) {
	fullArgs := append(s.baseArgs(), args...)
	command := exec.Command("tmux", fullArgs...)
	output, err := command.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("tmux %s: %w (%s)",
			strings.Join(args, " "), err, strings.TrimSpace(string(output)))
	}
	return string(output), nil
}

// NewSession creates a detached session with the given name. If command
// is non-empty, the session runs that command instead of the default
// shell.
//
// The -f flag is passed here because new-session may start the server,
// and the config file is only read at server start.
func (s *Server) NewSession(sessionName string, command ...string) error {
	var args []string
	if s.configFile != "" {
		args = append(args, "-f", s.configFile)
	}
	args = append(args, s.baseArgs()...)
	args = append(args, "new-session", "-d", "-s", sessionName)
	args = append(args, command...)

	cmd := exec.Command("tmux", args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("tmux new-session %q: %w (%s)",
			sessionName, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// HasSession reports whether a session with the given name exists.
// Returns false when the server is not running.
func (s *Server) HasSession(sessionName string) bool {
	args := append(s.baseArgs(), "has-session", "-t", "="+sessionName)
	return exec.Command("tmux", args...).Run() == nil
}

// ListSessions returns the names of all sessions on this server. A
// server that is not running has no sessions; that is returned as an
// empty list, not an error.
func (s *Server) ListSessions() ([]string, error) {
	output, err := s.Run("list-sessions", "-F", "#{session_name}")
	if err != nil {
		if strings.Contains(err.Error(), "no server running") ||
			strings.Contains(err.Error(), "No such file or directory") {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, line := range strings.Split(strings.TrimRight(output, "\n"), "\n") {
		if line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

// SessionAttached reports whether any client is currently attached to
// the named session.
func (s *Server) SessionAttached(sessionName string) (bool, error) {
	output, err := s.Run("display-message", "-t", "="+sessionName+":", "-p", "#{session_attached}")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(output) != "0", nil
}

// KillSession terminates the named session. Returns nil if the session
// was already gone or the server was not running — normal conditions
// during teardown, not errors.
func (s *Server) KillSession(sessionName string) error {
	args := append(s.baseArgs(), "kill-session", "-t", "="+sessionName)
	output, err := exec.Command("tmux", args...).CombinedOutput()
	if err != nil {
		outputString := strings.TrimSpace(string(output))
		if strings.Contains(outputString, "can't find session") ||
			strings.Contains(outputString, "no server running") {
			return nil
		}
		return fmt.Errorf("tmux kill-session %q: %w (%s)", sessionName, err, outputString)
	}
	return nil
}

// KillServer terminates the entire tmux server. Returns nil if the
// server was already stopped.
func (s *Server) KillServer() error {
	args := append(s.baseArgs(), "kill-server")
	output, err := exec.Command("tmux", args...).CombinedOutput()
	if err != nil {
		outputString := strings.TrimSpace(string(output))
		// "server exited unexpectedly" appears when the socket file
		// lingers briefly after the server process has exited.
		if strings.Contains(outputString, "no server running") ||
			strings.Contains(outputString, "server exited unexpectedly") {
			return nil
		}
		return fmt.Errorf("tmux kill-server: %w (%s)", err, outputString)
	}
	return nil
}

// SendLine types a line of input into the named session's active pane
// and presses Enter. The line is passed as a single literal argument
// (-l) so the shell inside the pane, not tmux, interprets it.
func (s *Server) SendLine(sessionName, line string) error {
	if _, err := s.Run("send-keys", "-t", "="+sessionName+":", "-l", line); err != nil {
		return err
	}
	_, err := s.Run("send-keys", "-t", "="+sessionName+":", "Enter")
	return err
}

// PaneCurrentCommand returns the name of the command running in the
// named session's active pane (e.g. "bash" for an idle shell). The
// supervisor polls this after creating a session to confirm the shell
// is ready to receive input.
func (s *Server) PaneCurrentCommand(sessionName string) (string, error) {
	output, err := s.Run("display-message", "-t", "="+sessionName+":", "-p", "#{pane_current_command}")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// CapturePane returns the full scrollback and visible content of the
// named session's active pane. Useful for post-mortem inspection of a
// service that failed to start.
func (s *Server) CapturePane(sessionName string) (string, error) {
	return s.Run("capture-pane", "-t", "="+sessionName+":", "-p", "-S", "-", "-E", "-")
}
