package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHandlerExposesCollectors(t *testing.T) {
	c := qt.New(t)
	before := testutil.ToFloat64(ComputationsQueued.WithLabelValues("add_balance"))
	ComputationsQueued.WithLabelValues("add_balance").Inc()
	c.Assert(testutil.ToFloat64(ComputationsQueued.WithLabelValues("add_balance")), qt.Equals, before+1)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	c.Assert(err, qt.IsNil)
	c.Assert(strings.Contains(string(body), `omnibatch_computations_queued_total{circuit="add_balance"}`), qt.IsTrue)
}
