//go:build tlcamera

package thorlabs

/*
#cgo CFLAGS: -I/usr/local/include/thorlabs
#cgo LDFLAGS: -L/usr/local/lib -lthorlabs_tsi_camera_sdk -ldl
#include <stdlib.h>
#include "tl_camera_sdk.h"
#include "tl_camera_sdk_load.h"
*/
import "C"
import (
	"fmt"
	"strings"
	"unsafe"
)

// discovery buffer, enough for a few dozen serial numbers
const idBufferLen = 1024

// SDKError is a failed SDK call
type SDKError struct {
	// Fn is the SDK function that failed
	Fn string

	// Msg is the SDK's last error message
	Msg string
}

func (e SDKError) Error() string {
	return fmt.Sprintf("%s: %s", e.Fn, e.Msg)
}

func check(code C.int, fn string) error {
	if code == 0 {
		return nil
	}
	return SDKError{Fn: fn, Msg: C.GoString(C.tl_camera_get_last_error())}
}

type cSDK struct{}

// NewSDK loads the SDK library and opens a session
func NewSDK() (SDK, error) {
	if err := check(C.tl_camera_sdk_dll_initialize(), "tl_camera_sdk_dll_initialize"); err != nil {
		return nil, err
	}
	if err := check(C.tl_camera_open_sdk(), "tl_camera_open_sdk"); err != nil {
		C.tl_camera_sdk_dll_terminate()
		return nil, err
	}
	return cSDK{}, nil
}

func (cSDK) DiscoverAvailableCameras() ([]string, error) {
	buf := (*C.char)(C.malloc(idBufferLen))
	defer C.free(unsafe.Pointer(buf))
	err := check(C.tl_camera_discover_available_cameras(buf, idBufferLen), "tl_camera_discover_available_cameras")
	if err != nil {
		return nil, err
	}
	return strings.Fields(C.GoString(buf)), nil
}

func (cSDK) OpenCamera(id string) (Device, error) {
	cs := C.CString(id)
	defer C.free(unsafe.Pointer(cs))
	var h unsafe.Pointer
	err := check(C.tl_camera_open_camera(cs, &h), "tl_camera_open_camera")
	if err != nil {
		return nil, err
	}
	return &cDevice{h: h}, nil
}

func (cSDK) Dispose() error {
	err := check(C.tl_camera_close_sdk(), "tl_camera_close_sdk")
	C.tl_camera_sdk_dll_terminate()
	return err
}

type cDevice struct {
	h unsafe.Pointer
}

func (d *cDevice) SetExposureTimeUS(us int) error {
	return check(C.tl_camera_set_exposure_time(d.h, C.longlong(us)), "tl_camera_set_exposure_time")
}

func (d *cDevice) SetFramesPerTrigger(n int) error {
	return check(C.tl_camera_set_frames_per_trigger_zero_for_unlimited(d.h, C.uint(n)), "tl_camera_set_frames_per_trigger_zero_for_unlimited")
}

func (d *cDevice) SetImagePollTimeoutMS(ms int) error {
	return check(C.tl_camera_set_image_poll_timeout(d.h, C.int(ms)), "tl_camera_set_image_poll_timeout")
}

func (d *cDevice) SetOperationMode(m OperationMode) error {
	return check(C.tl_camera_set_operation_mode(d.h, C.enum_TL_CAMERA_OPERATION_MODE(m)), "tl_camera_set_operation_mode")
}

func (d *cDevice) Arm(frames int) error {
	return check(C.tl_camera_arm(d.h, C.int(frames)), "tl_camera_arm")
}

func (d *cDevice) Disarm() error {
	return check(C.tl_camera_disarm(d.h), "tl_camera_disarm")
}

func (d *cDevice) PendingFrame() (*Frame, error) {
	var (
		buf      *C.ushort
		count    C.int
		meta     *C.uchar
		metaSize C.int
		w, h     C.int
	)
	err := check(C.tl_camera_get_pending_frame_or_null(d.h, &buf, &count, &meta, &metaSize), "tl_camera_get_pending_frame_or_null")
	if err != nil {
		return nil, err
	}
	if buf == nil {
		return nil, nil
	}
	if err = check(C.tl_camera_get_image_width(d.h, &w), "tl_camera_get_image_width"); err != nil {
		return nil, err
	}
	if err = check(C.tl_camera_get_image_height(d.h, &h), "tl_camera_get_image_height"); err != nil {
		return nil, err
	}
	n := int(w) * int(h)
	// the SDK owns buf until the next poll, copy out of it
	src := unsafe.Slice((*uint16)(unsafe.Pointer(buf)), n)
	f := &Frame{Width: int(w), Height: int(h), Pix: make([]uint16, n)}
	copy(f.Pix, src)
	return f, nil
}

func (d *cDevice) Dispose() error {
	return check(C.tl_camera_close_camera(d.h), "tl_camera_close_camera")
}
