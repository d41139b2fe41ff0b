// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package datasets

import "github.com/pkg/errors"

var (
	// ErrShapeMismatch is returned when samples or tensors have inconsistent dimensions.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrInvalidArgument is returned for out-of-range parameters: a split ratio outside [0, 1], a negative
	// number of patches, an empty channel list, etc.
	ErrInvalidArgument = errors.New("invalid argument")
)
