package prefork

import (
	"fmt"
	"os"
	"strconv"
)

const (
	EnvWorkerID   = "FASTWSGI_WORKER_ID"
	EnvListenerFD = "FASTWSGI_LISTENER_FD"
	EnvReadyFD    = "FASTWSGI_READY_FD"
)

// ExitBindFailure is the exit code of a worker that could not acquire the listening socket.
const ExitBindFailure = 3

// WorkerID tells whether the current process was spawned as a worker, and which one.
func WorkerID() (id int, ok bool) {
	raw, found := os.LookupEnv(EnvWorkerID)
	if !found {
		return 0, false
	}

	id, err := strconv.Atoi(raw)
	return id, err == nil
}

// InheritedListener returns the listening socket passed by the supervisor, or nil if workers
// are expected to bind on their own.
func InheritedListener() (*os.File, error) {
	return inheritedFile(EnvListenerFD, "listener")
}

// NotifyReady tells the supervisor the worker accepts connections. It's a no-op for a
// process that wasn't spawned by the supervisor.
func NotifyReady() error {
	file, err := inheritedFile(EnvReadyFD, "ready")
	if err != nil || file == nil {
		return err
	}

	defer file.Close()
	_, err = file.Write([]byte{1})
	return err
}

func inheritedFile(env, name string) (*os.File, error) {
	raw, found := os.LookupEnv(env)
	if !found {
		return nil, nil
	}

	fd, err := strconv.Atoi(raw)
	if err != nil || fd < 3 {
		return nil, fmt.Errorf("malformed %s: %q", env, raw)
	}

	// the variable must not leak into the processes the application might start
	_ = os.Unsetenv(env)

	return os.NewFile(uintptr(fd), name), nil
}
