package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrSessionNotFound = errors.New("session not found")
)

// FetchError is returned by price fetchers for any failed lookup. The record
// it belongs to is skipped until the next cycle.
type FetchError struct {
	ItemID string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch price for %q: %v", e.ItemID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// StoreError wraps a row-store failure. Row is zero for whole-store operations.
type StoreError struct {
	Op  string
	Row int
	Err error
}

func (e *StoreError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("store %s row %d: %v", e.Op, e.Row, e.Err)
	}
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

type NotifyError struct {
	OwnerID int64
	Err     error
}

func (e *NotifyError) Error() string {
	return fmt.Sprintf("notify %d: %v", e.OwnerID, e.Err)
}

func (e *NotifyError) Unwrap() error { return e.Err }

func IsFetchError(err error) bool {
	var target *FetchError
	return errors.As(err, &target)
}

func IsStoreError(err error) bool {
	var target *StoreError
	return errors.As(err, &target)
}
