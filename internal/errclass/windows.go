//go:build windows

//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/common/errclass/windows.go
//

package errclass

import "golang.org/x/sys/windows"

const (
	errECONNRESET = windows.WSAECONNRESET
	errEINTR      = windows.WSAEINTR
	// Windows has no WSA equivalent of a broken pipe write on a plain
	// (non-socket) handle; child stdio pipes surface this as
	// syscall.Errno(windows.ERROR_BROKEN_PIPE) instead.
	errEPIPE = windows.ERROR_BROKEN_PIPE
)
