package thorlabs

import (
	"errors"
	"testing"
)

func TestOpenNoCamera(t *testing.T) {
	sdk := NewMockSDK()
	sdk.IDs = nil
	_, err := Open(sdk)
	if !errors.Is(err, ErrNoCamera) {
		t.Errorf("expected ErrNoCamera, got %v", err)
	}
	if !sdk.Disposed {
		t.Error("SDK session was leaked")
	}
}

func TestAcquire(t *testing.T) {
	sdk := NewMockSDK()
	cam, err := Open(sdk)
	if err != nil {
		t.Fatal(err)
	}
	p := Params{ExposureUS: 1500, FramesPerTrigger: 1, Mode: HardwareTriggered}
	if err = cam.SetParams(p); err != nil {
		t.Fatal(err)
	}
	if sdk.Dev.Params != p || sdk.Dev.PollMS != PollTimeoutMS {
		t.Errorf("params not applied: %+v, poll %d", sdk.Dev.Params, sdk.Dev.PollMS)
	}
	if err = cam.Arm(); err != nil {
		t.Fatal(err)
	}
	img, err := cam.GetImage()
	if err != nil {
		t.Fatal(err)
	}
	if sdk.Dev.Armed {
		t.Error("camera still armed after GetImage")
	}
	b := img.Bounds()
	if b.Dx() != sdk.Width || b.Dy() != sdk.Height {
		t.Errorf("expected %dx%d, got %v", sdk.Width, sdk.Height, b)
	}
	// second pixel of the first ramp
	if img.Gray16At(1, 0).Y != 2 {
		t.Errorf("expected pixel value 2, got %d", img.Gray16At(1, 0).Y)
	}
	if err = cam.Close(); err != nil {
		t.Fatal(err)
	}
	if !sdk.Dev.Disposed || !sdk.Disposed {
		t.Error("Close did not dispose the camera and the SDK")
	}
	if err = cam.Arm(); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestGetImageNoFrame(t *testing.T) {
	sdk := NewMockSDK()
	cam, err := Open(sdk)
	if err != nil {
		t.Fatal(err)
	}
	defer cam.Close()
	sdk.Dev.SkipFrame = true
	cam.Arm()
	_, err = cam.GetImage()
	if !errors.Is(err, ErrNoFrame) {
		t.Errorf("expected ErrNoFrame, got %v", err)
	}
	if sdk.Dev.Armed {
		t.Error("camera must be disarmed even without a frame")
	}
}
