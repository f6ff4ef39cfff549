package motion_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi"

	"github.com/plume-lab/plume/generichttp"
	"github.com/plume-lab/plume/generichttp/motion"
	"github.com/plume-lab/plume/smd2"
	"github.com/plume-lab/plume/util"
)

func stageRouter(t *testing.T) (http.Handler, *smd2.MockStage) {
	t.Helper()
	d, stage := smd2.NewMock()
	rt := generichttp.RouteTable{}
	motion.HTTPMove(d, rt)
	motion.HTTPInPosition(d, rt)
	motion.HTTPScan(smd2.NewScan(d, smd2.NewRaster(500, 1000)), rt)
	lim := &motion.LimitMiddleware{Limits: map[string]util.Limiter{"2": {Min: 0, Max: 1000}}, Mov: d}
	lim.Inject(handler{rt})
	r := chi.NewRouter()
	r.Use(lim.Check)
	rt.Bind(r)
	return r, stage
}

type handler struct{ rt generichttp.RouteTable }

func (h handler) RT() generichttp.RouteTable { return h.rt }

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, path, strings.NewReader(body)))
	return w
}

func TestMoveAndQuery(t *testing.T) {
	h, stage := stageRouter(t)
	if w := do(h, http.MethodPost, "/axis/2/pos", `{"f64": 150}`); w.Code != http.StatusOK {
		t.Fatalf("move failed %d %s", w.Code, w.Body)
	}
	if stage.Pos(smd2.Motor2) != 150 {
		t.Errorf("expected motor 2 at 150, got %d", stage.Pos(smd2.Motor2))
	}
	if w := do(h, http.MethodPost, "/axis/1/pos?relative=true", `{"f64": -20}`); w.Code != http.StatusOK {
		t.Fatalf("relative move failed %d %s", w.Code, w.Body)
	}
	w := do(h, http.MethodGet, "/axis/1/pos", "")
	if strings.TrimSpace(w.Body.String()) != `{"f64":-20}` {
		t.Errorf("unexpected position %s", w.Body)
	}
	w = do(h, http.MethodGet, "/axis/1/inposition", "")
	if strings.TrimSpace(w.Body.String()) != `{"bool":true}` {
		t.Errorf("unexpected in-position reply %s", w.Body)
	}
}

func TestLimitRejectsMove(t *testing.T) {
	h, stage := stageRouter(t)
	w := do(h, http.MethodPost, "/axis/2/pos", `{"f64": 1500}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	if stage.Pos(smd2.Motor2) != 0 {
		t.Error("stage moved despite the limit")
	}
	w = do(h, http.MethodGet, "/axis/2/limits", "")
	if strings.TrimSpace(w.Body.String()) != `{"min":0,"max":1000}` {
		t.Errorf("unexpected limits %s", w.Body)
	}
}

func TestRasterRoutes(t *testing.T) {
	h, stage := stageRouter(t)
	if w := do(h, http.MethodPost, "/raster/step", ""); w.Code != http.StatusOK {
		t.Fatalf("step failed %d %s", w.Code, w.Body)
	}
	if stage.Pos(smd2.Motor1) != 500 {
		t.Errorf("first step should advance motor 1 to 500, got %d", stage.Pos(smd2.Motor1))
	}
	w := do(h, http.MethodGet, "/raster/done", "")
	if strings.TrimSpace(w.Body.String()) != `{"bool":false}` {
		t.Errorf("unexpected done reply %s", w.Body)
	}
}
