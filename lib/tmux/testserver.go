// Copyright 2026 The RqCore Authors
// SPDX-License-Identifier: Apache-2.0

package tmux

import (
	"os"
	"os/exec"
	"testing"
)

// NewTestServer creates an isolated tmux server for testing. The
// server:
//   - uses a short /tmp socket path (sun_path is limited to 108 bytes,
//     and t.TempDir can exceed that under some build systems)
//   - passes -f /dev/null so the operator's ~/.tmux.conf is not loaded
//   - creates a _guard session running "sleep infinity" so the server
//     stays up after tests kill their own sessions (tmux exits when its
//     last session ends)
//   - registers t.Cleanup to kill the server
//
// Skips the test when the tmux binary is unavailable.
func NewTestServer(t *testing.T) *Server {
	t.Helper()

	if _, err := exec.LookPath("tmux"); err != nil {
		t.Skip("tmux not installed")
	}

	dir, err := os.MkdirTemp("/tmp", "rqops-tmux-*")
	if err != nil {
		t.Fatalf("creating socket directory: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	server := NewServer(dir+"/tmux.sock", "/dev/null")
	if err := server.NewSession("_guard", "sleep", "infinity"); err != nil {
		t.Fatalf("start tmux test server: %v", err)
	}
	t.Cleanup(func() { _ = server.KillServer() })

	return server
}
