package locker

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi"

	"github.com/plume-lab/plume/generichttp"
)

type node struct{ rt generichttp.RouteTable }

func (n node) RT() generichttp.RouteTable { return n.rt }

func ok(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }

func mount(l ManipulableLock) http.Handler {
	n := node{generichttp.RouteTable{
		{Method: http.MethodPost, Path: "/run"}:             ok,
		{Method: http.MethodPost, Path: "/axis/{axis}/pos"}: ok,
	}}
	Inject(n, l)
	r := chi.NewRouter()
	r.Use(l.Check)
	n.RT().Bind(r)
	root := chi.NewRouter()
	root.Mount("/qc", r)
	return root
}

func do(h http.Handler, method, path, body string) int {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, path, strings.NewReader(body)))
	return w.Code
}

func TestLocker(t *testing.T) {
	h := mount(New())
	if c := do(h, http.MethodPost, "/qc/run", ""); c != http.StatusOK {
		t.Errorf("unlocked node replied %d", c)
	}
	if c := do(h, http.MethodPost, "/qc/lock", `{"bool": true}`); c != http.StatusOK {
		t.Fatalf("lock replied %d", c)
	}
	if c := do(h, http.MethodPost, "/qc/run", ""); c != http.StatusLocked {
		t.Errorf("expected 423 while locked, got %d", c)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/qc/lock", nil))
	if strings.TrimSpace(w.Body.String()) != `{"bool":true}` {
		t.Errorf("unexpected lock state %s", w.Body)
	}
	do(h, http.MethodPost, "/qc/lock", `{"bool": false}`)
	if c := do(h, http.MethodPost, "/qc/run", ""); c != http.StatusOK {
		t.Errorf("expected 200 after unlocking, got %d", c)
	}
}

func TestAxisLocker(t *testing.T) {
	h := mount(NewAL())
	if c := do(h, http.MethodPost, "/qc/axis/1/lock", `{"bool": true}`); c != http.StatusOK {
		t.Fatalf("axis lock replied %d", c)
	}
	if c := do(h, http.MethodPost, "/qc/axis/1/pos", `{"f64": 1}`); c != http.StatusLocked {
		t.Errorf("expected 423 for the locked axis, got %d", c)
	}
	if c := do(h, http.MethodPost, "/qc/axis/2/pos", `{"f64": 1}`); c != http.StatusOK {
		t.Errorf("expected 200 for the free axis, got %d", c)
	}
	if c := do(h, http.MethodPost, "/qc/run", ""); c != http.StatusOK {
		t.Errorf("expected 200 for the node, got %d", c)
	}
}
