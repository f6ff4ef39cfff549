package tektronix

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi"
)

func TestHTTPMeasurement(t *testing.T) {
	s, m := NewMock("2.5E-6")
	if err := s.Open(); err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	r := chi.NewRouter()
	NewHTTPWrapper(s).RT().Bind(r)
	do := func(method, path, body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(method, path, strings.NewReader(body)))
		return w
	}

	if w := do(http.MethodPost, "/measurement/1", `{"src": 2, "type": "RISe"}`); w.Code != http.StatusOK {
		t.Fatalf("setup replied %d %s", w.Code, w.Body)
	}
	w := do(http.MethodGet, "/measurement/1", "")
	if strings.TrimSpace(w.Body.String()) != `{"f64":0.0000025}` {
		t.Errorf("unexpected measurement %s", w.Body)
	}
	if w = do(http.MethodGet, "/measurement/9", ""); w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 for slot 9, got %d", w.Code)
	}
	if w = do(http.MethodPost, "/setup/recall", `{"int": 2}`); w.Code != http.StatusOK {
		t.Errorf("recall replied %d", w.Code)
	}
	if last := m.Commands[len(m.Commands)-1]; last != "RECALL:SETUP 2" {
		t.Errorf("expected RECALL:SETUP 2, got %q", last)
	}
}
