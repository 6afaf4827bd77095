package prefork

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"strconv"
)

// Process is a running worker.
type Process interface {
	PID() int
	Signal(sig os.Signal) error
	// Ready is closed as soon as the worker reports it accepts connections. It's never
	// closed if the worker dies before.
	Ready() <-chan struct{}
	// Wait blocks until the process exits and returns its exit code.
	Wait() (code int, err error)
}

// Spawner starts worker processes.
type Spawner interface {
	Spawn(id int) (Process, error)
}

// ExecSpawner starts workers by running the executable again. Workers find out they are
// workers by the environment.
type ExecSpawner struct {
	Path string
	Args []string
	// Listener is passed to every worker if set. Otherwise, workers bind on their own.
	Listener *os.File
	Stdout   io.Writer
	Stderr   io.Writer
}

// NewExecSpawner returns a spawner running the current executable with the same arguments.
func NewExecSpawner(listener *os.File) (*ExecSpawner, error) {
	path, err := os.Executable()
	if err != nil {
		return nil, err
	}

	return &ExecSpawner{
		Path:     path,
		Args:     os.Args[1:],
		Listener: listener,
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
	}, nil
}

func (e *ExecSpawner) Spawn(id int) (Process, error) {
	readyR, readyW, err := os.Pipe()
	if err != nil {
		return nil, err
	}

	defer readyW.Close()

	cmd := exec.Command(e.Path, e.Args...)
	cmd.Stdout, cmd.Stderr = e.Stdout, e.Stderr
	cmd.Env = append(os.Environ(), EnvWorkerID+"="+strconv.Itoa(id))

	if e.Listener != nil {
		cmd.ExtraFiles = append(cmd.ExtraFiles, e.Listener)
		cmd.Env = append(cmd.Env, EnvListenerFD+"="+strconv.Itoa(2+len(cmd.ExtraFiles)))
	}

	cmd.ExtraFiles = append(cmd.ExtraFiles, readyW)
	cmd.Env = append(cmd.Env, EnvReadyFD+"="+strconv.Itoa(2+len(cmd.ExtraFiles)))

	if err = cmd.Start(); err != nil {
		_ = readyR.Close()
		return nil, err
	}

	proc := &execProcess{
		cmd:   cmd,
		ready: make(chan struct{}),
	}
	go proc.awaitReady(readyR)

	return proc, nil
}

type execProcess struct {
	cmd   *exec.Cmd
	ready chan struct{}
}

func (e *execProcess) awaitReady(pipe *os.File) {
	defer pipe.Close()

	var b [1]byte
	if n, _ := pipe.Read(b[:]); n > 0 {
		close(e.ready)
	}
}

func (e *execProcess) PID() int {
	return e.cmd.Process.Pid
}

func (e *execProcess) Signal(sig os.Signal) error {
	return e.cmd.Process.Signal(sig)
}

func (e *execProcess) Ready() <-chan struct{} {
	return e.ready
}

func (e *execProcess) Wait() (int, error) {
	err := e.cmd.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}

	if err != nil {
		return -1, err
	}

	return 0, nil
}
