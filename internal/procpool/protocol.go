package procpool

import (
	"errors"
	"io/fs"
	"syscall"
)

// protocolVersion is checked during the startup handshake
const protocolVersion = 1

// Init is the one-time message the parent sends right after starting a worker.
type Init struct {
	Protocol int `json:"protocol"`
	Threads  int `json:"threads"`
}

// Ready is the worker's answer to Init.
type Ready struct {
	Ready    bool `json:"ready"`
	Protocol int  `json:"protocol"`
	PID      int  `json:"pid"`
}

// Request asks a worker to delete one path. Path travels as bytes (base64 in
// JSON) since file names need not be valid UTF-8.
type Request struct {
	ID   string `json:"id"`
	Path []byte `json:"path"`
}

// Response reports the outcome of one Request.
// Pools is the number of nested thread pools the worker has created so far.
type Response struct {
	ID    string     `json:"id"`
	PID   int        `json:"pid"`
	Pools int        `json:"pools"`
	Error *WireError `json:"error"`
}

// WireError is an error flattened for the trip back to the parent.
type WireError struct {
	Op      string  `json:"op,omitempty"`
	Path    []byte  `json:"path,omitempty"`
	Errno   uintptr `json:"errno,omitempty"`
	Message string  `json:"message"`
}

// RemoteError is an error raised inside a worker process.
type RemoteError struct {
	Message string
	Errno   syscall.Errno
}

func (e *RemoteError) Error() string {
	return e.Message
}

func (e *RemoteError) Unwrap() error {
	if e.Errno == 0 {
		return nil
	}
	return e.Errno
}

// encodeError flattens err, keeping the *fs.PathError shape and errno when present
func encodeError(err error) *WireError {
	if err == nil {
		return nil
	}
	we := &WireError{Message: err.Error()}

	var pe *fs.PathError
	if errors.As(err, &pe) {
		we.Op = pe.Op
		we.Path = []byte(pe.Path)
		we.Message = pe.Err.Error()
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		we.Errno = uintptr(errno)
	}
	return we
}

// Err rebuilds the error so errors.Is(err, fs.ErrNotExist) and friends keep working.
func (e *WireError) Err() error {
	if e == nil {
		return nil
	}

	var inner error = &RemoteError{Message: e.Message, Errno: syscall.Errno(e.Errno)}
	if e.Errno != 0 && syscall.Errno(e.Errno).Error() == e.Message {
		inner = syscall.Errno(e.Errno)
	}

	if e.Op != "" {
		return &fs.PathError{Op: e.Op, Path: string(e.Path), Err: inner}
	}
	return inner
}
