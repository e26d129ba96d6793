// Package storeerr holds the error shared by every backing store
// (credentials and sessions) to signal that it could not be reached.
//
// Callers must treat Unavailable as a transient server failure and never
// as "not authenticated".
package storeerr

import (
	"errors"
	"fmt"
)

type (
	Unavailable struct {
		Store string
		cause error
	}
)

// Wrap returns err as an Unavailable error for the given store.
// A nil err returns nil.
func Wrap(store string, err error) error {
	if err == nil {
		return nil
	}
	var u Unavailable
	if errors.As(err, &u) {
		return err
	}
	return Unavailable{Store: store, cause: err}
}

func (u Unavailable) Error() string {
	if u.cause == nil {
		return fmt.Sprintf("store %v is unavailable", u.Store)
	}
	return fmt.Sprintf("store %v is unavailable, cause %v", u.Store, u.cause)
}

func (u Unavailable) Unwrap() error {
	return u.cause
}

// Is makes errors.Is(err, Unavailable{}) match any store.
func (u Unavailable) Is(target error) bool {
	_, ok := target.(Unavailable)
	return ok
}
