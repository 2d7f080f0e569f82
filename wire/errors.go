//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package wire

import "errors"

// errNotObjectRoot is returned by Decode when raw parses as JSON but its
// root is not an object (e.g. a bare number, string, or array). Treated
// the same as a parse failure: forwarded, not interpreted.
var errNotObjectRoot = errors.New("wire: JSON-RPC message root is not an object")
