package prefork

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
)

type State uint8

const (
	Starting State = iota + 1
	Running
	Exited
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Exited:
		return "exited"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// WorkerRecord is what the supervisor knows about a single worker process.
type WorkerRecord struct {
	ID        int       `json:"id"`
	PID       int       `json:"pid"`
	State     State     `json:"state"`
	ExitCode  int       `json:"exit_code"`
	StartedAt time.Time `json:"started_at"`
	// ExitedAt is zero while the process is alive.
	ExitedAt time.Time `json:"exited_at"`
	Restarts int       `json:"restarts"`
}

type status struct {
	PID     int            `json:"pid"`
	Updated time.Time      `json:"updated"`
	Workers []WorkerRecord `json:"workers"`
}

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// writeStatus replaces the file atomically, so readers never see a partial snapshot.
func writeStatus(path string, records []WorkerRecord) error {
	data, err := json.MarshalIndent(status{
		PID:     os.Getpid(),
		Updated: time.Now(),
		Workers: records,
	}, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return err
	}

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}

	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}

	if err = os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("status file: %w", err)
	}

	return nil
}
