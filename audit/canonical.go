//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package audit

import "encoding/json"

// canonicalize returns v's canonical JSON serialization: sorted keys,
// no insignificant whitespace. encoding/json already produces no
// insignificant whitespace; it does not sort struct fields, but it does
// sort map keys. Round-tripping through map[string]any forces the sort
// without hand-rolling a key-sorting encoder.
func canonicalize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}
