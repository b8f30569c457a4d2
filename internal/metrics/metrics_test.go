package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppMetrics_Exposed(t *testing.T) {
	reg := NewRegistry()
	m := NewAppMetrics(reg)

	m.FramesSent.WithLabelValues("servos").Add(3)
	m.LinkState.Set(4)
	m.ReconnectTotal.WithLabelValues("ok").Inc()

	assert.Equal(t, 3.0, testutil.ToFloat64(m.FramesSent.WithLabelValues("servos")))

	rr := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.True(t, strings.Contains(body, `mecca_frames_sent_total{cmd="servos"} 3`))
	assert.True(t, strings.Contains(body, "mecca_link_state 4"))
}
