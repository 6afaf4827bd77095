// Package prefork runs the server in several independent processes sharing one listening
// address, and watches over them.
package prefork

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/indigo-web/fastwsgi/config"
	"github.com/indigo-web/fastwsgi/logging"
)

var ErrAllWorkersExited = errors.New("all workers exited")

// ExitError describes a worker exit nobody asked for.
type ExitError struct {
	ID   int
	PID  int
	Code int
}

func (e *ExitError) Error() string {
	if e.BindFailure() {
		return fmt.Sprintf("worker %d (pid %d) failed to bind the listening socket", e.ID, e.PID)
	}

	return fmt.Sprintf("worker %d (pid %d) exited with code %d", e.ID, e.PID, e.Code)
}

func (e *ExitError) BindFailure() bool {
	return e.Code == ExitBindFailure
}

type exit struct {
	id, pid, code int
	err           error
}

type Supervisor struct {
	cfg     config.Workers
	spawner Spawner
	logger  *logging.Logger

	mu       sync.Mutex
	records  []WorkerRecord
	procs    map[int]Process
	restarts int

	statusMu sync.Mutex
}

func New(cfg config.Workers, spawner Spawner, logger *logging.Logger) *Supervisor {
	return &Supervisor{
		cfg:     cfg,
		spawner: spawner,
		logger:  logger,
		records: make([]WorkerRecord, cfg.Count),
		procs:   make(map[int]Process, cfg.Count),
	}
}

// Run spawns the workers and watches them until ctx is done, then shuts them down
// gracefully. It returns ErrAllWorkersExited if no worker is left alive before that.
func (s *Supervisor) Run(ctx context.Context) error {
	exits := make(chan exit)

	for id := range s.cfg.Count {
		if err := s.spawn(id, exits); err != nil {
			s.logger.WithError(err).With("worker", id).Critical("failed to spawn worker")
			s.shutdown(exits)
			return fmt.Errorf("spawn worker %d: %w", id, err)
		}
	}

	for s.live() > 0 {
		select {
		case <-ctx.Done():
			s.shutdown(exits)
			return nil
		case e := <-exits:
			s.onExit(e, exits)
		}
	}

	return ErrAllWorkersExited
}

// Records returns a snapshot of the workers' records.
func (s *Supervisor) Records() []WorkerRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.records)
}

func (s *Supervisor) spawn(id int, exits chan<- exit) error {
	proc, err := s.spawner.Spawn(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.procs[id] = proc
	record := &s.records[id]
	restarts := record.Restarts
	if record.State != 0 {
		restarts++
	}
	*record = WorkerRecord{
		ID:        id,
		PID:       proc.PID(),
		State:     Starting,
		StartedAt: time.Now(),
		Restarts:  restarts,
	}
	s.mu.Unlock()
	s.updated()

	s.logger.With("worker", id).With("pid", proc.PID()).Debug("worker spawned")

	done := make(chan struct{})
	go s.awaitReady(id, proc, done)
	go func() {
		code, err := proc.Wait()
		close(done)
		exits <- exit{id: id, pid: proc.PID(), code: code, err: err}
	}()

	return nil
}

func (s *Supervisor) awaitReady(id int, proc Process, done <-chan struct{}) {
	logger := s.logger.With("worker", id).With("pid", proc.PID())

	var timeout <-chan time.Time
	if s.cfg.ReadyTimeout > 0 {
		timer := time.NewTimer(s.cfg.ReadyTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-proc.Ready():
		s.mu.Lock()
		if record := &s.records[id]; record.PID == proc.PID() && record.State == Starting {
			record.State = Running
		}
		s.mu.Unlock()
		s.updated()
		logger.Info("worker is ready")
	case <-timeout:
		logger.Warning("worker did not report readiness in time")
	case <-done:
	}
}

func (s *Supervisor) onExit(e exit, exits chan<- exit) {
	s.markExited(e)
	logger := s.logger.With("worker", e.id).With("pid", e.pid)
	if e.err != nil {
		logger = logger.WithError(e.err)
	}

	exitErr := &ExitError{ID: e.id, PID: e.pid, Code: e.code}
	logger.With("code", e.code).Critical(exitErr.Error())

	if !s.shouldRestart(exitErr) {
		return
	}

	s.restarts++
	logger.With("restarts", s.restarts).Notice("restarting worker")
	if err := s.spawn(e.id, exits); err != nil {
		logger.WithError(err).Critical("failed to respawn worker")
	}
}

func (s *Supervisor) shouldRestart(e *ExitError) bool {
	if s.cfg.Restart != config.RestartOnFailure || e.Code == 0 || e.BindFailure() {
		return false
	}

	if s.restarts >= s.cfg.MaxRestarts {
		s.logger.With("worker", e.ID).Error("restarts limit exceeded, worker won't be restarted")
		return false
	}

	return true
}

// shutdown asks every worker to stop and waits for them, killing those still alive after
// the grace period.
func (s *Supervisor) shutdown(exits <-chan exit) {
	s.signalAll(syscall.SIGTERM)

	grace := time.NewTimer(s.cfg.GracePeriod)
	defer grace.Stop()

	for s.live() > 0 {
		select {
		case e := <-exits:
			s.markExited(e)
			s.logger.With("worker", e.id).With("pid", e.pid).With("code", e.code).Info("worker stopped")
		case <-grace.C:
			s.logger.With("alive", s.live()).Warning("grace period is over, killing remaining workers")
			s.signalAll(syscall.SIGKILL)
		}
	}
}

func (s *Supervisor) signalAll(sig os.Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, proc := range s.procs {
		if err := proc.Signal(sig); err != nil {
			s.logger.WithError(err).With("worker", id).Debug("failed to signal worker")
		}
	}
}

func (s *Supervisor) markExited(e exit) {
	s.mu.Lock()
	delete(s.procs, e.id)
	record := &s.records[e.id]
	record.State = Exited
	record.ExitCode = e.code
	record.ExitedAt = time.Now()
	s.mu.Unlock()
	s.updated()
}

func (s *Supervisor) live() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.procs)
}

func (s *Supervisor) updated() {
	if len(s.cfg.StatusFile) == 0 {
		return
	}

	s.statusMu.Lock()
	defer s.statusMu.Unlock()

	if err := writeStatus(s.cfg.StatusFile, s.Records()); err != nil {
		s.logger.WithError(err).Warning("failed to write status file")
	}
}
