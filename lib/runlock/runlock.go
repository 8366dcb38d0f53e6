// Copyright 2026 The RqCore Authors
// SPDX-License-Identifier: Apache-2.0

// Package runlock provides an exclusive run lease for scheduled jobs.
//
// The deploy pipeline is triggered on a schedule and must never be
// re-entered while a previous run is still in progress — a build or
// copy step that stalls past the next trigger would otherwise race a
// second run through the same directories. The lease is a non-blocking
// flock(2) on a well-known file, so the kernel releases it when the
// holding process exits for any reason: stale leases after a crash
// recover for free.
//
// The lock file also carries holder metadata (pid, hostname, start
// time) as JSON so a blocked invocation can report who is running.
// The metadata is advisory; only the flock matters for exclusion.
package runlock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// Holder describes the process holding a lease. Written into the lock
// file on acquisition.
type Holder struct {
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`
}

// HeldError is returned by Acquire when another process holds the
// lease. Holder carries whatever metadata the current holder recorded;
// it is zero when the metadata could not be read.
type HeldError struct {
	Path   string
	Holder Holder
}

func (e *HeldError) Error() string {
	if e.Holder.PID != 0 {
		return fmt.Sprintf("run lease %s held by pid %d since %s",
			e.Path, e.Holder.PID, e.Holder.StartedAt.Format(time.RFC3339))
	}
	return fmt.Sprintf("run lease %s held by another process", e.Path)
}

// Lease is an acquired exclusive lease. Release it on any terminal
// state; the kernel also releases it if the process dies first.
type Lease struct {
	file *os.File
	path string
}

// Acquire takes the exclusive lease at path without blocking. When the
// lease is free, the holder metadata in the file (possibly left over
// from a crashed run) is overwritten with the current process's.
// When another process holds it, Acquire returns a *HeldError.
func Acquire(path string) (*Lease, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening run lease %s: %w", path, err)
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		held := &HeldError{Path: path}
		if errors.Is(err, unix.EWOULDBLOCK) {
			held.Holder = readHolder(file)
			file.Close()
			return nil, held
		}
		file.Close()
		return nil, fmt.Errorf("locking run lease %s: %w", path, err)
	}

	hostname, _ := os.Hostname()
	holder := Holder{
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: time.Now().UTC(),
	}
	if err := writeHolder(file, holder); err != nil {
		unix.Flock(int(file.Fd()), unix.LOCK_UN)
		file.Close()
		return nil, err
	}

	return &Lease{file: file, path: path}, nil
}

// Path returns the lock file path.
func (l *Lease) Path() string { return l.path }

// Release drops the lease. The lock file is left in place with the
// last holder's metadata — the flock, not the file's existence, is
// what other processes check.
func (l *Lease) Release() error {
	if err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		l.file.Close()
		return fmt.Errorf("unlocking run lease %s: %w", l.path, err)
	}
	return l.file.Close()
}

func readHolder(file *os.File) Holder {
	var holder Holder
	data := make([]byte, 512)
	n, err := file.ReadAt(data, 0)
	if n == 0 && err != nil {
		return holder
	}
	_ = json.Unmarshal(trimNUL(data[:n]), &holder)
	return holder
}

func writeHolder(file *os.File, holder Holder) error {
	data, err := json.Marshal(holder)
	if err != nil {
		return fmt.Errorf("encoding lease holder: %w", err)
	}
	data = append(data, '\n')
	if err := file.Truncate(0); err != nil {
		return fmt.Errorf("truncating lease file: %w", err)
	}
	if _, err := file.WriteAt(data, 0); err != nil {
		return fmt.Errorf("writing lease holder: %w", err)
	}
	return nil
}

func trimNUL(data []byte) []byte {
	for i, b := range data {
		if b == 0 {
			return data[:i]
		}
	}
	return data
}
