//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/common/errclass/errclass.go
//

// Package errclass classifies errors observed on a stdio pipe into short,
// descriptive labels, the same shape as the network error classifier this
// package is adapted from, but aimed at the errors a stdio proxy actually
// sees: a closed pipe, a dead child, a broken write end.
package errclass

import (
	"context"
	"errors"
	"io"
	"os"
)

// Classifier classifies errors into categorical strings for the errClass
// field on proxy and audit log lines.
type Classifier interface {
	Classify(err error) string
}

// ClassifierFunc adapts a function to the [Classifier] interface.
type ClassifierFunc func(error) string

var _ Classifier = ClassifierFunc(nil)

// Classify implements [Classifier].
func (f ClassifierFunc) Classify(err error) string {
	return f(err)
}

// Default is the classifier proxy and audit components use unless a test
// overrides it with something more specific.
var Default = ClassifierFunc(New)

const (
	EEOF       = "EOF"
	EPIPE      = "EPIPE"
	ECLOSED    = "ECLOSED"
	ECONNRESET = "ECONNRESET"
	ETIMEDOUT  = "ETIMEDOUT"
	ECANCELED  = "ECANCELED"
	EGENERIC   = "EGENERIC"
)

// New classifies err, returning "" for a nil error.
//
// The checks are ordered most-specific first: io.EOF and io.ErrClosedPipe
// are stdio-specific signals that a plain errno match would miss (os.File
// wraps them in a *PathError before the syscall.Errno is reachable via
// errors.Is, but errors.Is on io.EOF/io.ErrClosedPipe still works because
// those are the sentinel values themselves, not wrapped errnos).
func New(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, io.EOF):
		return EEOF
	case errors.Is(err, io.ErrClosedPipe):
		return ECLOSED
	case errors.Is(err, os.ErrClosed):
		return ECLOSED
	case errors.Is(err, context.Canceled):
		return ECANCELED
	case errors.Is(err, context.DeadlineExceeded):
		return ETIMEDOUT
	case errors.Is(err, errEPIPE):
		return EPIPE
	case errors.Is(err, errECONNRESET):
		return ECONNRESET
	case errors.Is(err, errEINTR):
		// A signal interrupted the syscall; labelled as a cancellation.
		return ECANCELED
	default:
		return EGENERIC
	}
}
