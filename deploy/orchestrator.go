// Copyright 2026 The RqCore Authors
// SPDX-License-Identifier: Apache-2.0

package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/gyantal/RqCore/lib/clock"
	"github.com/gyantal/RqCore/lib/digest"
	"github.com/gyantal/RqCore/lib/runlock"
)

// Phase is the orchestrator's position in the deployment state
// machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSyncing
	PhaseDeciding
	PhaseBuilding
	PhaseStopping
	PhaseRotating
	PhaseStarting
	PhaseDone
	PhaseAborted
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSyncing:
		return "syncing"
	case PhaseDeciding:
		return "deciding"
	case PhaseBuilding:
		return "building"
	case PhaseStopping:
		return "stopping"
	case PhaseRotating:
		return "rotating"
	case PhaseStarting:
		return "starting"
	case PhaseDone:
		return "done"
	case PhaseAborted:
		return "aborted"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

// The orchestrator's collaborators, as interfaces so sequencing tests
// can substitute fakes for the git/cargo/tmux-backed implementations.

// Tracker decides whether the staged revision differs from production.
type Tracker interface {
	SyncAndCompare(ctx context.Context) (RevisionDiff, error)
}

// Builder builds (and optionally tests) a deployment tree.
type Builder interface {
	Build(ctx context.Context, treeRoot string) error
}

// Supervisor manages the reserved service session.
type Supervisor interface {
	Terminate() error
	Create() error
	StartCommand(workdir, commandLine string) error
}

// DirectoryRotator performs and reverses the production rotation.
type DirectoryRotator interface {
	Rotate(staging, production, backupRoot, dateStamp string) error
	Rollback(production, backupRoot string) error
}

// RunRecorder persists run records. *Ledger satisfies it.
type RunRecorder interface {
	Record(ctx context.Context, record RunRecord) error
}

// OrchestratorOptions wires an Orchestrator.
type OrchestratorOptions struct {
	Staging    string
	Production string
	BackupRoot string

	// Artifact is the built executable's path relative to the tree
	// root. The startup command changes into its directory and
	// invokes it.
	Artifact string

	// LockPath is the run lease file.
	LockPath string

	Tracker    Tracker
	Builder    Builder
	Supervisor Supervisor
	Rotator    DirectoryRotator

	// Ledger is optional; nil disables run recording.
	Ledger RunRecorder

	Clock  clock.Clock
	Logger *slog.Logger
}

// Orchestrator sequences one deployment run. It holds no state beyond
// the current phase and the identifiers collected while syncing; a new
// run starts from a fresh Run call.
type Orchestrator struct {
	options OrchestratorOptions
	phase   Phase
}

// NewOrchestrator returns an Orchestrator over the given collaborators.
func NewOrchestrator(options OrchestratorOptions) *Orchestrator {
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}
	return &Orchestrator{options: options, phase: PhaseIdle}
}

// Phase returns the phase the last (or current) run reached.
func (o *Orchestrator) Phase() Phase { return o.phase }

// Run executes one deployment run end to end. A nil return means Done
// — either a promotion or a no-op when the revisions already match.
// Any error means the run aborted; the caller maps that to a non-zero
// exit status.
func (o *Orchestrator) Run(ctx context.Context) error {
	lease, err := runlock.Acquire(o.options.LockPath)
	if err != nil {
		var held *runlock.HeldError
		if errors.As(err, &held) {
			return fmt.Errorf("deployment already running: %w", err)
		}
		return err
	}
	defer lease.Release()

	record := RunRecord{
		StartedAt: o.options.Clock.Now(),
		Outcome:   OutcomeAborted,
	}
	defer o.writeRecord(&record)

	o.enter(PhaseSyncing)
	diff, err := o.options.Tracker.SyncAndCompare(ctx)
	if err != nil {
		return o.abort(&record, err)
	}
	record.StagedID = diff.StagedID
	record.ProductionID = diff.ProductionID

	o.enter(PhaseDeciding)
	if !diff.Changed {
		o.options.Logger.Info("staged revision matches production, nothing to deploy",
			"revision", diff.StagedID)
		record.Outcome = OutcomeNoop
		o.enter(PhaseDone)
		return nil
	}

	o.enter(PhaseBuilding)
	if err := o.options.Builder.Build(ctx, o.options.Staging); err != nil {
		// Nothing has been torn down; the running instance keeps
		// serving the old revision.
		return o.abort(&record, err)
	}
	record.ArtifactDigest = o.artifactDigest(o.options.Staging)

	o.enter(PhaseStopping)
	if err := o.options.Supervisor.Terminate(); err != nil {
		return o.abort(&record, err)
	}

	o.enter(PhaseRotating)
	dateStamp := o.options.Clock.Now().Format("20060102")
	if err := o.options.Rotator.Rotate(o.options.Staging, o.options.Production,
		o.options.BackupRoot, dateStamp); err != nil {
		// The old session is already gone. Only CopyFailed means
		// production was moved aside, so only then is re-promoting the
		// backup the way to leave a startable tree behind. Every other
		// kind leaves production intact, and a rollback would clobber
		// it with an older backup.
		var rotateErr *RotateError
		if errors.As(err, &rotateErr) && rotateErr.Kind == CopyFailed {
			record.RolledBack = o.rollbackAndRestart()
		}
		return o.abort(&record, err)
	}

	o.enter(PhaseStarting)
	if err := o.startService(o.options.Production); err != nil {
		record.RolledBack = o.rollbackAndRestart()
		return o.abort(&record, err)
	}

	record.Outcome = OutcomeSuccess
	o.enter(PhaseDone)
	return nil
}

// enter logs the phase transition. The logging contract: every phase
// entry produces one narrative line on the combined output stream.
func (o *Orchestrator) enter(phase Phase) {
	o.options.Logger.Info("phase", "from", o.phase.String(), "to", phase.String())
	o.phase = phase
}

func (o *Orchestrator) abort(record *RunRecord, err error) error {
	record.Error = err.Error()
	record.Phase = o.phase.String() // the phase that failed, not "aborted"
	o.options.Logger.Error("run aborted", "phase", o.phase.String(), "error", err)
	o.enter(PhaseAborted)
	return err
}

// startService creates the session and injects the startup command
// pointed at the tree's artifact.
func (o *Orchestrator) startService(treeRoot string) error {
	if err := o.options.Supervisor.Create(); err != nil {
		return err
	}
	artifact := filepath.Join(treeRoot, filepath.FromSlash(o.options.Artifact))
	return o.options.Supervisor.StartCommand(
		filepath.Dir(artifact),
		"./"+filepath.Base(artifact),
	)
}

// rollbackAndRestart re-promotes the newest backup and restarts the
// service from it. Best effort: the run is aborting either way, so
// failures here are logged and reflected in the return value, never
// masked over the original error.
func (o *Orchestrator) rollbackAndRestart() bool {
	logger := o.options.Logger

	// A failed start may have left a half-initialized session behind.
	if err := o.options.Supervisor.Terminate(); err != nil {
		logger.Error("rollback: terminating leftover session failed", "error", err)
		return false
	}
	if err := o.options.Rotator.Rollback(o.options.Production, o.options.BackupRoot); err != nil {
		logger.Error("rollback: re-promoting backup failed", "error", err)
		return false
	}
	if err := o.startService(o.options.Production); err != nil {
		logger.Error("rollback: restarting previous revision failed", "error", err)
		return false
	}
	logger.Warn("rolled back and restarted previous revision")
	return true
}

// artifactDigest digests the freshly built artifact for the ledger.
// Best effort: a digest failure is logged, not fatal.
func (o *Orchestrator) artifactDigest(treeRoot string) string {
	path := filepath.Join(treeRoot, filepath.FromSlash(o.options.Artifact))
	d, err := digest.File(path)
	if err != nil {
		o.options.Logger.Warn("artifact digest failed", "path", path, "error", err)
		return ""
	}
	return d.String()
}

// writeRecord finalizes and persists the run record. Ledger failures
// are logged, never fatal to a deploy.
func (o *Orchestrator) writeRecord(record *RunRecord) {
	if o.options.Ledger == nil {
		return
	}
	record.FinishedAt = o.options.Clock.Now()
	if record.Phase == "" {
		record.Phase = o.phase.String()
	}

	// The run's own context may already be cancelled when aborting.
	if err := o.options.Ledger.Record(context.Background(), *record); err != nil {
		o.options.Logger.Error("writing run record failed", "error", err)
	}
}
