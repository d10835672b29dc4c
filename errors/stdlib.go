// Copyright (c) 2025-2026 The parastats developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package errors

import "errors"

// As is a passthrough to the standard library errors.As so callers of this
// package do not need a second errors import.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Is is a passthrough to the standard library errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// New is a passthrough to the standard library errors.New.
func New(text string) error {
	return errors.New(text)
}
