package thorlabs

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi"

	"github.com/plume-lab/plume/generichttp"
	"github.com/plume-lab/plume/imgrec"
)

func TestHTTPAcquire(t *testing.T) {
	sdk := NewMockSDK()
	cam, err := Open(sdk)
	if err != nil {
		t.Fatal(err)
	}
	defer cam.Close()
	rec := imgrec.NewRecorder(t.TempDir(), "cam")
	h := NewHTTPWrapper(cam, rec)
	r := chi.NewRouter()
	h.RT().Bind(r)

	do := func(method, path, body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(method, path, strings.NewReader(body)))
		return w
	}
	if w := do(http.MethodPost, "/params", `{"exposureUs": 2000, "framesPerTrigger": 1, "mode": 1}`); w.Code != http.StatusOK {
		t.Fatalf("params failed %d %s", w.Code, w.Body)
	}
	if sdk.Dev.Params.ExposureUS != 2000 || sdk.Dev.Params.Mode != HardwareTriggered {
		t.Errorf("params not applied: %+v", sdk.Dev.Params)
	}
	if w := do(http.MethodPost, "/arm", ""); w.Code != http.StatusOK {
		t.Fatalf("arm failed %d %s", w.Code, w.Body)
	}
	w := do(http.MethodGet, "/image?fmt=png", "")
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
		t.Errorf("expected a png, got %d %s", w.Code, w.Header().Get("Content-Type"))
	}
	if w = do(http.MethodGet, "/image?fmt=tiff", ""); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for an unknown format, got %d", w.Code)
	}
	if _, ok := h.RT()[routeKey(http.MethodGet, "/autowrite/root")]; !ok {
		t.Error("recorder routes were not injected")
	}
}

func TestHTTPImageWithoutFrame(t *testing.T) {
	sdk := NewMockSDK()
	cam, _ := Open(sdk)
	defer cam.Close()
	h := NewHTTPWrapper(cam, nil)
	r := chi.NewRouter()
	h.RT().Bind(r)
	sdk.Dev.SkipFrame = true
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/image", nil))
	if w.Code != http.StatusInternalServerError || !strings.Contains(w.Body.String(), ErrNoFrame.Error()) {
		t.Errorf("expected 500 with %q, got %d %s", ErrNoFrame, w.Code, w.Body)
	}
}

func routeKey(method, path string) generichttp.MethodPath {
	return generichttp.MethodPath{Method: method, Path: path}
}
