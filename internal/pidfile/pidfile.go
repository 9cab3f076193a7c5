// Package pidfile guards against two rulesync daemons serving one socket.
// The file records which root and socket the running daemon serves.
package pidfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/grovetools/rulesync/errors"
)

// Record is the content of the pid file.
type Record struct {
	PID     int       `json:"pid"`
	Root    string    `json:"root"`
	Socket  string    `json:"socket"`
	Started time.Time `json:"started"`
}

// Acquire writes rec for the current process. A file left by a process
// that has exited is replaced; a live daemon fails with ALREADY_EXISTS.
func Acquire(path string, rec Record) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create pid directory")
	}

	if old, err := Read(path); err == nil && old.PID != os.Getpid() && Alive(old.PID) {
		return errors.AlreadyExists(fmt.Sprintf("daemon (PID %d)", old.PID)).
			WithDetail("root", old.Root).
			WithDetail("socket", old.Socket)
	}

	rec.PID = os.Getpid()
	if rec.Started.IsZero() {
		rec.Started = time.Now()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to encode pid file")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to write pid file").WithDetail("path", path)
	}
	return os.Rename(tmp, path)
}

// Release removes the pid file if it still belongs to this process.
func Release(path string) error {
	rec, err := Read(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err == nil && rec.PID != os.Getpid() {
		return nil
	}
	return os.Remove(path)
}

func Read(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "malformed pid file").WithDetail("path", path)
	}
	return &rec, nil
}

// Running returns the record of a live daemon, or nil when none runs.
func Running(path string) (*Record, error) {
	rec, err := Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if !Alive(rec.PID) {
		return nil, nil
	}
	return rec, nil
}

// Alive reports whether a process with pid exists. Signal 0 checks without
// delivering anything; EPERM still means the process exists.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	return err == nil || os.IsPermission(err)
}
