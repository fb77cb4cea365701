//go:build js && wasm

package detector

import "errors"

// Detect is unavailable in the browser; adapters are requested through JS there.
func Detect() (*Report, error) {
	return nil, errors.New("adapter probing is not supported on js/wasm")
}
