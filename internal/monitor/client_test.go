package monitor

import (
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/clustereye/collector/internal/config"
)

func startMonitorServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, int) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	parsed, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	_, portStr, err := net.SplitHostPort(parsed.Host)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	return server, port
}

func TestClientFetch(t *testing.T) {
	var gotPath string
	var gotCategories string
	var gotEncoding string

	_, port := startMonitorServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotCategories = r.URL.Query().Get("categories")
		gotEncoding = r.Header.Get("Accept-Encoding")
		w.Write([]byte(`{"timestamp": {"tv_sec": 1}}`))
	})

	client := NewClient(config.CollectorConfig{
		MonitorPort: port,
		WaitTimeout: 2 * time.Second,
	})

	body, err := client.Fetch("127.0.0.1")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if string(body) != `{"timestamp": {"tv_sec": 1}}` {
		t.Errorf("body = %s", body)
	}
	if gotPath != "/" {
		t.Errorf("path = %q", gotPath)
	}
	if gotCategories != "80" {
		t.Errorf("categories = %q, want 80", gotCategories)
	}
	if gotEncoding != "deflate" {
		t.Errorf("accept-encoding = %q, want deflate", gotEncoding)
	}
}

func TestClientFetchBadStatus(t *testing.T) {
	_, port := startMonitorServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	client := NewClient(config.CollectorConfig{
		MonitorPort: port,
		WaitTimeout: 2 * time.Second,
	})

	if _, err := client.Fetch("127.0.0.1"); err == nil {
		t.Error("Expected error for 500 response")
	}
}

func TestClientFetchConnectionRefused(t *testing.T) {
	client := NewClient(config.CollectorConfig{
		MonitorPort: 1, // nothing listens here
		WaitTimeout: time.Second,
	})

	if _, err := client.Fetch("127.0.0.1"); err == nil {
		t.Error("Expected error for refused connection")
	}
}
