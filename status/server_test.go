package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"netpoller/alerting"
	"netpoller/monitor"
	"netpoller/sink"
	"netpoller/telemetry"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeCollectors []monitor.CollectorStatus

func (f fakeCollectors) Status() []monitor.CollectorStatus { return f }

type fakeAlerts []alerting.Alert

func (f fakeAlerts) Active() []alerting.Alert { return f }

type fakeSink struct {
	devices []sink.DeviceStatus
	history []telemetry.AlertRecord
	err     error
	since   time.Time
	limit   int
}

func (f *fakeSink) DeviceStatus(context.Context, time.Duration) ([]sink.DeviceStatus, error) {
	return f.devices, f.err
}

func (f *fakeSink) AlertHistory(_ context.Context, since time.Time, limit int) ([]telemetry.AlertRecord, error) {
	f.since, f.limit = since, limit
	return f.history, f.err
}

func newTestServer(t *testing.T, fs *fakeSink) http.Handler {
	t.Helper()
	reg := prometheus.NewRegistry()
	up := prometheus.NewGauge(prometheus.GaugeOpts{Name: "netpoller_up", Help: "Process is up."})
	up.Set(1)
	reg.MustRegister(up)

	collectors := fakeCollectors{
		{Name: "mikrotik", Running: true, Cycles: 3},
		{Name: "wan", Running: false, Restarts: 1},
	}
	alerts := fakeAlerts{{ID: "cpu_r1", Type: alerting.TypeCPU, DeviceID: "r1", Active: true}}
	return NewServer("", collectors, alerts, fs, reg, zap.NewNop()).Handler()
}

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var body map[string]interface{}
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("unmarshal %s: %v", path, err)
		}
	}
	return w, body
}

func TestHealthEndpoint(t *testing.T) {
	w, body := get(t, newTestServer(t, &fakeSink{}), "/api/health")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	if body["collectors_running"] != float64(1) || body["active_alerts"] != float64(1) {
		t.Errorf("body = %v", body)
	}
}

func TestCollectorsEndpoint(t *testing.T) {
	_, body := get(t, newTestServer(t, &fakeSink{}), "/api/collectors")
	list, ok := body["collectors"].([]interface{})
	if !ok || len(list) != 2 {
		t.Fatalf("collectors = %v", body["collectors"])
	}
	first := list[0].(map[string]interface{})
	if first["name"] != "mikrotik" || first["cycles"] != float64(3) {
		t.Errorf("first collector = %v", first)
	}
}

func TestAlertsEndpoint(t *testing.T) {
	_, body := get(t, newTestServer(t, &fakeSink{}), "/api/alerts")
	list, ok := body["alerts"].([]interface{})
	if !ok || len(list) != 1 {
		t.Fatalf("alerts = %v", body["alerts"])
	}
}

func TestAlertHistoryEndpoint(t *testing.T) {
	fs := &fakeSink{history: []telemetry.AlertRecord{{AlertID: "cpu_r1", Active: false}}}
	h := newTestServer(t, fs)

	_, body := get(t, h, "/api/alerts/history?since=1h&limit=5")
	if list, ok := body["alerts"].([]interface{}); !ok || len(list) != 1 {
		t.Fatalf("alerts = %v", body["alerts"])
	}
	if fs.limit != 5 {
		t.Errorf("limit = %d, want 5", fs.limit)
	}
	if age := time.Since(fs.since); age < time.Hour || age > time.Hour+time.Minute {
		t.Errorf("since is %s ago, want about 1h", age)
	}

	if w, _ := get(t, h, "/api/alerts/history?since=yesterday"); w.Code != http.StatusBadRequest {
		t.Errorf("bad since status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestDevicesEndpoint(t *testing.T) {
	fs := &fakeSink{devices: []sink.DeviceStatus{{ID: "r1", Name: "Router", Status: "online"}}}
	_, body := get(t, newTestServer(t, fs), "/api/devices")
	if list, ok := body["devices"].([]interface{}); !ok || len(list) != 1 {
		t.Errorf("devices = %v", body["devices"])
	}
}

func TestDevicesEndpointSinkFailure(t *testing.T) {
	fs := &fakeSink{err: errors.New("sink down")}
	w, body := get(t, newTestServer(t, fs), "/api/devices")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	list, ok := body["devices"].([]interface{})
	if !ok || len(list) != 0 {
		t.Errorf("devices = %v, want empty list", body["devices"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	w, _ := get(t, newTestServer(t, &fakeSink{}), "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "netpoller_up 1") {
		t.Errorf("metrics output missing gauge:\n%s", w.Body.String())
	}
}
