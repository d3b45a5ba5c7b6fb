package hubclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/graymere/hublink/internal/hub"
)

// newTestClient builds a Client pointed at an httptest server.
func newTestClient(t *testing.T, srv *httptest.Server, opts ...Option) *Client {
	t.Helper()

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parsing server URL: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("parsing server port: %v", err)
	}

	c, err := New(hub.HubConfig{
		ID:     "hub1",
		Host:   u.Hostname(),
		Port:   port,
		APIKey: "test-key",
	}, nil, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestNew_RequiresHost(t *testing.T) {
	if _, err := New(hub.HubConfig{ID: "h1", Port: 8080}, nil); err == nil {
		t.Fatal("expected error for empty host")
	}
}

func TestStatus_ParsesResponseAndSendsAPIKey(t *testing.T) {
	var gotKey, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(hub.HubInfo{
			Serial:      "H-9000",
			Model:       "hub-mk2",
			Firmware:    "3.1.4",
			Permissions: []string{"read", "write"},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	info, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}

	if gotKey != "test-key" {
		t.Errorf("API key header = %q, want %q", gotKey, "test-key")
	}
	if gotPath != "/api/v1/status" {
		t.Errorf("path = %q, want /api/v1/status", gotPath)
	}
	want := &hub.HubInfo{
		Serial:      "H-9000",
		Model:       "hub-mk2",
		Firmware:    "3.1.4",
		Permissions: []string{"read", "write"},
	}
	if diff := cmp.Diff(want, info); diff != "" {
		t.Errorf("info mismatch (-want +got):\n%s", diff)
	}
}

func TestStatus_OmitsAPIKeyHeaderWhenUnset(t *testing.T) {
	var hasHeader bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasHeader = r.Header["X-Api-Key"]
		json.NewEncoder(w).Encode(hub.HubInfo{Serial: "H-1"})
	}))
	defer srv.Close()

	u, _ := url.Parse(srv.URL)
	port, _ := strconv.Atoi(u.Port())
	c, err := New(hub.HubConfig{ID: "h1", Host: u.Hostname(), Port: port}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	if _, err := c.Status(context.Background()); err != nil {
		t.Fatalf("Status: %v", err)
	}
	if hasHeader {
		t.Error("API key header sent despite empty key")
	}
}

func TestDevices_DecodesCategoryProperties(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/devices" {
			t.Errorf("path = %q, want /api/v1/devices", r.URL.Path)
		}
		fmt.Fprint(w, `[
			{"id":"d1","name":"Hall Light","category":"light","online":true,
			 "properties":{"on":true,"brightness":80}},
			{"id":"d2","name":"Front Door","category":"lock","online":true,
			 "properties":{"locked":true}}
		]`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	devices, err := c.Devices(context.Background())
	if err != nil {
		t.Fatalf("Devices: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("got %d devices, want 2", len(devices))
	}

	light, ok := devices[0].Props.(*hub.LightProps)
	if !ok {
		t.Fatalf("d1 props are %T, want *hub.LightProps", devices[0].Props)
	}
	if !light.On || light.Brightness == nil || *light.Brightness != 80 {
		t.Errorf("light props = %+v, want on with brightness 80", light)
	}
	if _, ok := devices[1].Props.(*hub.LockProps); !ok {
		t.Fatalf("d2 props are %T, want *hub.LockProps", devices[1].Props)
	}
}

func TestDevice_EscapesID(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		fmt.Fprint(w, `{"id":"a/b","name":"Odd","category":"switch","online":true}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	d, err := c.Device(context.Background(), "a/b")
	if err != nil {
		t.Fatalf("Device: %v", err)
	}
	if gotPath != "/api/v1/devices/a%2Fb" {
		t.Errorf("path = %q, want escaped device id", gotPath)
	}
	if d.ID != "a/b" {
		t.Errorf("device id = %q, want a/b", d.ID)
	}
}

func TestAPIError_UsesErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":"no such device"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Device(context.Background(), "ghost")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error is %T, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", apiErr.StatusCode)
	}
	if apiErr.Message != "no such device" {
		t.Errorf("message = %q, want envelope text", apiErr.Message)
	}
}

func TestAPIError_ToleratesNonJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "hub firmware panic")
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Status(context.Background())

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error is %T, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", apiErr.StatusCode)
	}
	if apiErr.Message != "" {
		t.Errorf("message = %q, want empty for non-envelope body", apiErr.Message)
	}
}

func TestSlowHub_ReturnsTimeoutError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := newTestClient(t, srv, WithTimeout(50*time.Millisecond))
	_, err := c.Status(context.Background())

	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("error is %T (%v), want *TimeoutError", err, err)
	}
}

func TestUnreachableHub_ReturnsConnectionError(t *testing.T) {
	// Grab a port nothing listens on.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	c, err := New(hub.HubConfig{ID: "h1", Host: "127.0.0.1", Port: port}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	_, err = c.Status(context.Background())
	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("error is %T (%v), want *ConnectionError", err, err)
	}
}

func TestSetDeviceProperties_SendsPUTWithEnvelope(t *testing.T) {
	var (
		mu      sync.Mutex
		method  string
		path    string
		ctype   string
		payload map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		method = r.Method
		path = r.URL.Path
		ctype = r.Header.Get("Content-Type")
		json.NewDecoder(r.Body).Decode(&payload)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	err := c.SetDeviceProperties(context.Background(), "d1", map[string]any{"on": true, "brightness": 55})
	if err != nil {
		t.Fatalf("SetDeviceProperties: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if method != http.MethodPut {
		t.Errorf("method = %q, want PUT", method)
	}
	if path != "/api/v1/devices/d1/properties" {
		t.Errorf("path = %q", path)
	}
	if ctype != "application/json" {
		t.Errorf("content type = %q, want application/json", ctype)
	}
	want := map[string]any{"properties": map[string]any{"on": true, "brightness": float64(55)}}
	if diff := cmp.Diff(want, payload); diff != "" {
		t.Errorf("body mismatch (-want +got):\n%s", diff)
	}
}

func TestSetDeviceProperties_PropagatesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":"write permission not granted"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	err := c.SetDeviceProperties(context.Background(), "d1", map[string]any{"on": true})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error is %T, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", apiErr.StatusCode)
	}
}

func TestSnapshot_ReturnsImageBytes(t *testing.T) {
	image := []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/devices/cam1/snapshot" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write(image)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	got, err := c.Snapshot(context.Background(), "cam1")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if diff := cmp.Diff(image, got); diff != "" {
		t.Errorf("image mismatch (-want +got):\n%s", diff)
	}
}

func TestFactory_BuildsClients(t *testing.T) {
	factory := Factory(nil)
	client, err := factory(hub.HubConfig{ID: "h1", Host: "hub.local", Port: 8080})
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	concrete, ok := client.(*Client)
	if !ok {
		t.Fatalf("factory returned %T, want *Client", client)
	}
	defer concrete.Close()
}

func TestClassifyErr(t *testing.T) {
	refused := &url.Error{Op: "Get", URL: "http://hub.local/api/v1/status", Err: errors.New("connection refused")}

	tests := []struct {
		name        string
		err         error
		wantTimeout bool
	}{
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"url error", refused, false},
		{"bare error", errors.New("broken pipe"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyErr("status", "hub.local:8080", tt.err)
			var timeoutErr *TimeoutError
			var connErr *ConnectionError
			switch {
			case tt.wantTimeout && !errors.As(got, &timeoutErr):
				t.Errorf("got %T, want *TimeoutError", got)
			case !tt.wantTimeout && !errors.As(got, &connErr):
				t.Errorf("got %T, want *ConnectionError", got)
			}
		})
	}
}
