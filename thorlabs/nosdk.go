//go:build !tlcamera

package thorlabs

import "errors"

// ErrNoSDK is returned by NewSDK in builds without the tlcamera tag
var ErrNoSDK = errors.New("built without the Thorlabs camera SDK, rebuild with -tags tlcamera")

// NewSDK always fails in builds without the tlcamera tag
func NewSDK() (SDK, error) {
	return nil, ErrNoSDK
}
