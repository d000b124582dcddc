// Package errors defines emFile's closed set of error codes and the
// DriverError wrapper used to carry them across the core's internal APIs.
//
// The set mirrors the "representative members" enumerated in the external
// interfaces section of the on-disk/on-wire specification this module
// implements: configuration errors, I/O failures, format errors, cluster
// chain consistency errors, and resource-exhaustion errors all surface
// through the same small vocabulary rather than being mapped onto POSIX
// errno, since none of this lives behind a POSIX syscall boundary.
package errors

import "fmt"

// Code is one member of emFile's closed error-code set.
type Code string

const (
	OK                  = Code("")
	InvalidPara         = Code("invalid parameter")
	InvalidUsage        = Code("invalid usage")
	OutOfMemory         = Code("out of memory")
	InvalidFSFormat     = Code("invalid file system format")
	InvalidFSType       = Code("invalid file system type")
	InvalidClusterChain = Code("invalid cluster chain")
	ClusterNotFree      = Code("cluster not free")
	ReadFailure         = Code("read failure")
	WriteFailure        = Code("write failure")
	VolumeNotFound      = Code("volume not found")
	StorageNotReady     = Code("storage not ready")
	BufferNotAvailable  = Code("no sector buffer available")
	BufferTooSmall      = Code("buffer too small")
	HWLayerNotSet       = Code("HW layer not set")
	InitFailure         = Code("initialization failure")
	NotSupported        = Code("not supported")
)

func (c Code) Error() string {
	return string(c)
}

// WithMessage attaches a free-form message to the code, without wrapping
// any other error.
func (c Code) WithMessage(message string) DriverError {
	return customDriverError{code: c, message: message}
}

// WrapError attaches the code to an underlying error, preserving it for
// errors.Unwrap/errors.Is.
func (c Code) WrapError(err error) DriverError {
	return customDriverError{
		code:          c,
		message:       fmt.Sprintf("%s: %s", c.Error(), err.Error()),
		originalError: err,
	}
}
