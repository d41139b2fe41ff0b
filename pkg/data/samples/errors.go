// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package samples

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrAcquisition is the kind of every failure to acquire raw samples: network, archive extraction,
// missing directories and undecodable image files. Check for it with errors.Is.
var ErrAcquisition = errors.New("sample acquisition failed")

// AcquisitionError wraps the underlying failure of acquiring samples from a source (a URL, a
// directory, a file).
type AcquisitionError struct {
	Source string
	Err    error
}

// NewAcquisitionError returns an AcquisitionError for the given source, or nil if err is nil.
func NewAcquisitionError(source string, err error) error {
	if err == nil {
		return nil
	}
	return &AcquisitionError{Source: source, Err: err}
}

// Error implements error.
func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("acquiring %q: %v", e.Source, e.Err)
}

// Format implements fmt.Formatter, so "%+v" prints the stack of the underlying error.
func (e *AcquisitionError) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		_, _ = fmt.Fprintf(s, "acquiring %q: %+v", e.Source, e.Err)
		return
	}
	_, _ = fmt.Fprint(s, e.Error())
}

// Unwrap returns the underlying failure.
func (e *AcquisitionError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrAcquisition) true for any AcquisitionError.
func (e *AcquisitionError) Is(target error) bool { return target == ErrAcquisition }
