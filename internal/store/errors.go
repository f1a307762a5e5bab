package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// LocalStoreError reports a storage-layer failure. The enclosing transaction
// has been rolled back when a caller sees it.
type LocalStoreError struct {
	Op  string
	Err error
}

func (e *LocalStoreError) Error() string {
	return fmt.Sprintf("local store: %s: %v", e.Op, e.Err)
}

func (e *LocalStoreError) Unwrap() error {
	return e.Err
}

// storeErr wraps err as a LocalStoreError, passing nil and ErrNotFound through.
func storeErr(op string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	var lse *LocalStoreError
	if errors.As(err, &lse) {
		return err
	}
	return &LocalStoreError{Op: op, Err: err}
}
