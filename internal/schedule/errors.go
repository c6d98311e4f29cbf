/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package schedule

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRange indicates a period whose end precedes its start. Aborts the
// whole computation.
var ErrInvalidRange = errors.New("period end before period start")

// ErrNoAvailableDates indicates that no study day in the period has non-zero
// capacity. Non-retryable input data error.
var ErrNoAvailableDates = errors.New("no study days with capacity in period")

// ConstraintError carries the subject rule violations that aborted an
// allocation under strict handling.
type ConstraintError struct {
	Violations []Violation
}

func (e *ConstraintError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.Message)
	}
	return fmt.Sprintf("subject constraints violated: %s", strings.Join(msgs, "; "))
}

// AsConstraintError unwraps err into a ConstraintError if it is one.
func AsConstraintError(err error) (*ConstraintError, bool) {
	var ce *ConstraintError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
