//go:build unix

//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/common/errclass/unix.go
//

package errclass

import "golang.org/x/sys/unix"

const (
	errECONNRESET = unix.ECONNRESET
	errEINTR      = unix.EINTR
	errEPIPE      = unix.EPIPE
)
