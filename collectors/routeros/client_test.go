package routeros

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"netpoller/collectors"
)

func testDevice(t *testing.T, srv *httptest.Server) collectors.Device {
	t.Helper()
	host, port, err := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
	if err != nil {
		t.Fatal(err)
	}
	p, _ := strconv.Atoi(port)
	return collectors.Device{ID: "r1", Host: host, APIPort: p, APIUser: "admin", APIPassword: "secret"}
}

func TestGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/system/resource" {
			t.Errorf("path = %s, want /rest/system/resource", r.URL.Path)
		}
		if user, pass, ok := r.BasicAuth(); !ok || user != "admin" || pass != "secret" {
			t.Errorf("basic auth = %s/%s/%v", user, pass, ok)
		}
		w.Write([]byte(`{"cpu-load":"12","free-memory":1024,"uptime":"1d2h","bad-blocks":null}`))
	}))
	defer srv.Close()

	c := NewClientWithHTTP(srv.Client())
	recs, err := c.Get(context.Background(), testDevice(t, srv), "system/resource")
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	r := recs[0]
	if got := r.Float("cpu-load"); got != 12 {
		t.Errorf("cpu-load = %v, want 12", got)
	}
	if got := r.Float("free-memory"); got != 1024 {
		t.Errorf("free-memory = %v, want 1024", got)
	}
	if got := r.String("uptime", ""); got != "1d2h" {
		t.Errorf("uptime = %q, want 1d2h", got)
	}
	if _, ok := r["bad-blocks"]; ok {
		t.Error("null value kept")
	}
}

func TestPostSendsArguments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		var args map[string]any
		if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if args["interface"] != "ether1" || args["once"] != true {
			t.Errorf("args = %v", args)
		}
		w.Write([]byte(`[{"name":"ether1","running":"true"},{"name":"ether2","running":"false"}]`))
	}))
	defer srv.Close()

	c := NewClientWithHTTP(srv.Client())
	recs, err := c.Post(context.Background(), testDevice(t, srv), "interface/monitor-traffic",
		map[string]any{"interface": "ether1", "once": true})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("records = %d, want 2", len(recs))
	}
	if !recs[0].Bool("running") || recs[1].Bool("running") {
		t.Errorf("running = %v/%v, want true/false", recs[0].Bool("running"), recs[1].Bool("running"))
	}
}

func TestErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":401,"message":"Unauthorized"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClientWithHTTP(srv.Client())
	_, err := c.Get(context.Background(), testDevice(t, srv), "interface")
	if err == nil || !strings.Contains(err.Error(), "status 401") {
		t.Errorf("err = %v, want status 401", err)
	}
}

func TestTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := NewClientWithHTTP(srv.Client())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.Get(ctx, testDevice(t, srv), "interface"); err == nil {
		t.Error("expected error after deadline")
	}
}

func TestURL(t *testing.T) {
	c := NewClient(time.Second)
	tests := []struct {
		name string
		dev  collectors.Device
		want string
	}{
		{"plain", collectors.Device{Host: "10.0.0.1"}, "http://10.0.0.1/rest/interface"},
		{"tls", collectors.Device{Host: "10.0.0.1", UseTLS: true}, "https://10.0.0.1/rest/interface"},
		{"port", collectors.Device{Host: "10.0.0.1", APIPort: 8443, UseTLS: true}, "https://10.0.0.1:8443/rest/interface"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.url(tt.dev, "interface"); got != tt.want {
				t.Errorf("url = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRecordString(t *testing.T) {
	r := Record{"name": "wlan1", "ssid": ""}
	if got := r.String("ssid", "unknown"); got != "unknown" {
		t.Errorf("empty ssid = %q, want unknown", got)
	}
	if got := r.String("missing", "x"); got != "x" {
		t.Errorf("missing = %q, want x", got)
	}
	if got := r.Float("name"); got != 0 {
		t.Errorf("non-numeric float = %v, want 0", got)
	}
}
