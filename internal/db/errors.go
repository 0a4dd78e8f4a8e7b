package db

import "errors"

// ErrNoData is returned by Coverage when an account has no rows for a source.
var ErrNoData = errors.New("no performance data")

// StorageError means a batch could not be committed. Nothing from the
// failed call is guaranteed to be applied; the whole batch may be retried.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return "storage: " + e.Op + " failed"
	}
	return "storage: " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
