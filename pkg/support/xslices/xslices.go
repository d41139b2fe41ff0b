// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package xslices provide missing functionality to the slices package.
package xslices

import (
	"cmp"
	"flag"
	"fmt"
	"strings"

	"golang.org/x/exp/constraints"
)

// Number is any Go integer or float type.
type Number interface {
	constraints.Integer | constraints.Float
}

// Copy creates a new (shallow) copy of T. A short cut to a call to `make` and then `copy`.
func Copy[T any](slice []T) []T {
	if len(slice) == 0 {
		return nil
	}
	slice2 := make([]T, len(slice))
	copy(slice2, slice)
	return slice2
}

// ToFloat64 converts a slice of numbers to float64, appending to buf (which can be nil) to allow reuse
// of the storage.
func ToFloat64[T Number](buf []float64, slice []T) []float64 {
	for _, v := range slice {
		buf = append(buf, float64(v))
	}
	return buf
}

// Max scans the slice and returns the maximum value.
func Max[T cmp.Ordered](slice []T) (max T) {
	if len(slice) == 0 {
		return
	}
	max = slice[0]
	for _, v := range slice {
		if max < v {
			max = v
		}
	}
	return
}

// Min scans the slice and returns the smallest value.
func Min[T cmp.Ordered](slice []T) (min T) {
	if len(slice) == 0 {
		return
	}
	min = slice[0]
	for _, v := range slice {
		if v < min {
			min = v
		}
	}
	return
}

// Flag creates a flag for []T with the given name, description and default value.
// It takes as input a parser for an individual T value.
func Flag[T any](name string, defaultValue []T, usage string,
	parserFn func(valueStr string) (T, error)) *[]T {
	f := &genericSliceFlagImpl[T]{
		parsedSlice: defaultValue,
		parserFn:    parserFn,
	}
	flag.Var(f, name, usage)
	return &f.parsedSlice
}

// genericSliceFlagImpl implements flag.Value for a generic type.
type genericSliceFlagImpl[T any] struct {
	parsedSlice []T
	parserFn    func(valueStr string) (T, error)
}

func (f *genericSliceFlagImpl[T]) String() string {
	if len(f.parsedSlice) == 0 {
		return ""
	}
	parts := make([]string, len(f.parsedSlice))
	for ii, elem := range f.parsedSlice {
		parts[ii] = fmt.Sprintf("%v", elem)
	}
	return strings.Join(parts, ",")
}

func (f *genericSliceFlagImpl[T]) Set(listStr string) error {
	if listStr == "" {
		f.parsedSlice = make([]T, 0)
		return nil
	}
	parts := strings.Split(listStr, ",")
	f.parsedSlice = make([]T, len(parts))
	var err error
	for ii, part := range parts {
		f.parsedSlice[ii], err = f.parserFn(strings.TrimSpace(part))
		if err != nil {
			return err
		}
	}
	return nil
}
