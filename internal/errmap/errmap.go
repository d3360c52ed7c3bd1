// Package errmap is the single funnel every Go error crossing a host
// boundary (the host file-system adapter, the worker transport) passes
// through before becoming a wasierrno.Errno. Per §7, handlers never
// propagate a Go error across the wire; this package is where that
// translation happens, exactly once per boundary crossing.
//
// Grounded on rclone's per-backend normalization pattern (each backend
// in rclone-rclone/* maps its own client errors down to a small shared
// set: fs.ErrorObjectNotFound, fs.ErrorDirNotFound, fs.ErrorDirectoryNotEmpty,
// ...) translated here to wasierrno's POSIX-shaped set instead of rclone's
// fs.Error* sentinels, since this runtime's callers expect an errno, not
// a backend-agnostic fs.Error.
package errmap

import (
	"context"
	"errors"

	"github.com/wasicore/runtime/hostadapter"
	"github.com/wasicore/runtime/wasierrno"
)

// FileSystem maps an error returned by a hostadapter.FileSystem call to
// its wasierrno.Errno. A nil error maps to Success.
func FileSystem(err error) wasierrno.Errno {
	if err == nil {
		return wasierrno.Success
	}
	if errors.Is(err, hostadapter.ErrNotFound) {
		return wasierrno.Enoent
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return wasierrno.Etimedout
	}
	if errors.Is(err, context.Canceled) {
		return wasierrno.Ecanceled
	}
	var pe pathError
	if errors.As(err, &pe) {
		return pe.Errno()
	}
	return wasierrno.UnknownError
}

// Transport maps an error returned by a hostadapter.Transport call
// (Post, SpawnWorker) to its wasierrno.Errno.
func Transport(err error) wasierrno.Errno {
	if err == nil {
		return wasierrno.Success
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return wasierrno.Etimedout
	}
	if errors.Is(err, context.Canceled) {
		return wasierrno.Ecanceled
	}
	return wasierrno.UnknownError
}

// pathError is implemented by a hostadapter.FileSystem error that
// already knows its own errno (e.g. a permission-denied wrapper an
// embedder returns); FileSystem consults it before falling back to
// UnknownError.
type pathError interface {
	error
	Errno() wasierrno.Errno
}
