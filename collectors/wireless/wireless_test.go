package wireless

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"netpoller/collectors"
	"netpoller/collectors/routeros"
)

func TestQuery(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/interface/wireless", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"name":"wlan1","mac-address":"00:11:22:33:44:55","ssid":"Office","frequency":"2412","band":"2ghz-b/g/n","mode":"ap-bridge","tx-power":"20","running":"true"}]`))
	})
	mux.HandleFunc("/rest/interface/wireless/registration-table", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"mac-address":"AA:BB:CC:DD:EE:FF","interface":"wlan1","signal-strength":"-65","signal-to-noise":"25","tx-rate":"65000","rx-rate":"54000","uptime":"1h23m45s"}]`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	q := &Querier{API: routeros.NewClientWithHTTP(srv.Client())}
	d := collectors.Device{ID: "ap1", Name: "AP", Host: strings.TrimPrefix(srv.URL, "http://"), APIUser: "admin"}

	snap, err := q.Query(context.Background(), d)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(snap.Radios) != 1 || snap.Radios[0].Frequency != 2412 || !snap.Radios[0].Running {
		t.Errorf("radios = %+v", snap.Radios)
	}
	if len(snap.Clients) != 1 || snap.Clients[0].SignalStrength != -65 {
		t.Errorf("clients = %+v", snap.Clients)
	}

	obs := Observations(d, snap, time.Now())
	if len(obs) != 2 {
		t.Fatalf("observations = %d, want 2", len(obs))
	}
	client := obs[1]
	if client.Measurement != "wireless_client" {
		t.Fatalf("measurement = %q", client.Measurement)
	}
	if got := client.Fields["uptime_seconds"]; got != 5025 {
		t.Errorf("uptime_seconds = %v, want 5025", got)
	}
	if obs[0].Tags["ssid"] != "Office" {
		t.Errorf("ssid tag = %q", obs[0].Tags["ssid"])
	}
}

func TestSynthesizeClientCount(t *testing.T) {
	business := Synthesize(collectors.Device{}, time.Date(2024, 1, 2, 9, 0, 0, 0, time.Local))
	night := Synthesize(collectors.Device{}, time.Date(2024, 1, 2, 2, 0, 0, 0, time.Local))

	if len(business.Clients) != 3 {
		t.Errorf("business clients = %d, want 3", len(business.Clients))
	}
	if len(night.Clients) != 1 {
		t.Errorf("night clients = %d, want 1", len(night.Clients))
	}
	for _, c := range business.Clients {
		if c.SignalStrength < -80 || c.SignalStrength > -50 {
			t.Errorf("signal = %v, want -80..-50", c.SignalStrength)
		}
		secs := collectors.ParseDurationSeconds(c.Uptime)
		if secs < 300 || secs > 172_800 {
			t.Errorf("uptime %q = %ds, want 300..172800", c.Uptime, secs)
		}
	}
}
