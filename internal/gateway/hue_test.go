package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeBridge serves the subset of the v1 API used by Hue
type fakeBridge struct {
	mu        sync.Mutex
	listCalls int
	puts      map[string]map[string]interface{}
	putReply  string // Response body for PUTs; a success entry when empty
}

const lightsJSON = `{
	"2": {"name": "Lamp", "state": {"on": false, "bri": 10, "hue": 20000, "sat": 30}},
	"1": {"name": "Desk", "state": {"on": true, "bri": 200, "hue": 5, "sat": 150}}
}`

func newFakeBridge(t *testing.T) (*fakeBridge, *httptest.Server) {
	t.Helper()
	fb := &fakeBridge{puts: make(map[string]map[string]interface{})}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		defer fb.mu.Unlock()

		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/user/lights":
			fb.listCalls++
			io.WriteString(w, lightsJSON)
		case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/api/user/lights/"):
			var body map[string]interface{}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			fb.puts[r.URL.Path] = body
			if fb.putReply != "" {
				io.WriteString(w, fb.putReply)
				return
			}
			io.WriteString(w, `[{"success": {"/lights/1/state/on": true}}]`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return fb, srv
}

func newTestHue(srv *httptest.Server) *Hue {
	return NewHue(HueConfig{
		Address:      srv.URL,
		Username:     "user",
		Timeout:      2 * time.Second,
		RateLimitRPS: 100,
		NameCacheTTL: time.Minute,
	})
}

func TestHue_LightNamesOrderedByID(t *testing.T) {
	_, srv := newFakeBridge(t)
	h := newTestHue(srv)

	names, err := h.LightNames(context.Background())
	if err != nil {
		t.Fatalf("LightNames: %v", err)
	}
	if len(names) != 2 || names[0] != "Desk" || names[1] != "Lamp" {
		t.Errorf("LightNames() = %v, want [Desk Lamp]", names)
	}
}

func TestHue_Snapshot(t *testing.T) {
	_, srv := newFakeBridge(t)
	h := newTestHue(srv)

	snap, err := h.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	want := map[string]Reading{
		"Desk": {On: true, Hue: 5, Sat: 150, Bri: 200},
		"Lamp": {On: false, Hue: 20000, Sat: 30, Bri: 10},
	}
	for name, w := range want {
		if got := snap[name]; got != w {
			t.Errorf("Snapshot()[%q] = %+v, want %+v", name, got, w)
		}
	}
}

func TestHue_SetLightResolvesName(t *testing.T) {
	fb, srv := newFakeBridge(t)
	h := newTestHue(srv)

	on := true
	bri := uint8(180)
	tt := uint16(10)
	err := h.SetLight(context.Background(), "Lamp", Command{On: &on, Bri: &bri, TransitionTime: &tt})
	if err != nil {
		t.Fatalf("SetLight: %v", err)
	}

	fb.mu.Lock()
	defer fb.mu.Unlock()

	body, ok := fb.puts["/api/user/lights/2/state"]
	if !ok {
		t.Fatalf("no PUT for light 2, got %v", fb.puts)
	}
	if body["on"] != true {
		t.Errorf("on = %v, want true", body["on"])
	}
	if body["bri"] != float64(180) {
		t.Errorf("bri = %v, want 180", body["bri"])
	}
	if body["transitiontime"] != float64(10) {
		t.Errorf("transitiontime = %v, want 10", body["transitiontime"])
	}
	if _, ok := body["hue"]; ok {
		t.Error("hue should not be sent when the command leaves it unset")
	}
}

func TestHue_SetLightUsesNameCache(t *testing.T) {
	fb, srv := newFakeBridge(t)
	h := newTestHue(srv)
	ctx := context.Background()

	if _, err := h.LightNames(ctx); err != nil {
		t.Fatalf("LightNames: %v", err)
	}

	off := false
	for i := 0; i < 3; i++ {
		if err := h.SetLight(ctx, "Desk", Command{On: &off}); err != nil {
			t.Fatalf("SetLight: %v", err)
		}
	}

	fb.mu.Lock()
	defer fb.mu.Unlock()
	if fb.listCalls != 1 {
		t.Errorf("bridge listed lights %d times, want 1", fb.listCalls)
	}
}

func TestHue_SetLightUnknownName(t *testing.T) {
	_, srv := newFakeBridge(t)
	h := newTestHue(srv)

	on := true
	err := h.SetLight(context.Background(), "Garage", Command{On: &on})
	if !errors.Is(err, ErrUnknownLight) {
		t.Errorf("SetLight(unknown) = %v, want ErrUnknownLight", err)
	}
}

func TestHue_SetLightSendsZeroValues(t *testing.T) {
	fb, srv := newFakeBridge(t)
	h := newTestHue(srv)

	on := true
	hue, tt := uint16(0), uint16(0)
	sat, bri := uint8(0), uint8(0)
	cmd := Command{On: &on, Hue: &hue, Sat: &sat, Bri: &bri, TransitionTime: &tt}
	if err := h.SetLight(context.Background(), "Lamp", cmd); err != nil {
		t.Fatalf("SetLight: %v", err)
	}

	fb.mu.Lock()
	defer fb.mu.Unlock()

	body := fb.puts["/api/user/lights/2/state"]
	for _, field := range []string{"hue", "sat", "bri", "transitiontime"} {
		v, ok := body[field]
		if !ok {
			t.Errorf("%s missing from %v", field, body)
			continue
		}
		if v != float64(0) {
			t.Errorf("%s = %v, want 0", field, v)
		}
	}
}

func TestHue_SetLightWithoutOn(t *testing.T) {
	fb, srv := newFakeBridge(t)
	h := newTestHue(srv)

	bri := uint8(1)
	if err := h.SetLight(context.Background(), "Desk", Command{Bri: &bri}); err != nil {
		t.Fatalf("SetLight: %v", err)
	}

	fb.mu.Lock()
	defer fb.mu.Unlock()
	body := fb.puts["/api/user/lights/1/state"]
	if _, ok := body["on"]; ok || body["bri"] != float64(1) {
		t.Errorf("body = %v, want only bri", body)
	}
}

func TestHue_SetLightBridgeErrors(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		wantErr bool
	}{
		{
			name:    "invalid value",
			reply:   `[{"error": {"type": 7, "address": "/lights/2/state/bri", "description": "invalid value, 300, for parameter, bri"}}]`,
			wantErr: true,
		},
		{
			name:  "color of a light being turned off",
			reply: `[{"success": {"/lights/2/state/on": false}},
				{"error": {"type": 201, "address": "/lights/2/state/hue", "description": "parameter, hue, is not modifiable. Device is set to off."}}]`,
		},
		{
			name:    "not json",
			reply:   `<html>busy</html>`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb, srv := newFakeBridge(t)
			fb.putReply = tt.reply
			h := newTestHue(srv)

			off := false
			err := h.SetLight(context.Background(), "Lamp", Command{On: &off})
			if (err != nil) != tt.wantErr {
				t.Fatalf("SetLight = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrUnavailable) {
				t.Errorf("SetLight = %v, want ErrUnavailable", err)
			}
		})
	}
}

func TestHue_SetLightCancelledOnCacheMiss(t *testing.T) {
	_, srv := newFakeBridge(t)
	h := newTestHue(srv)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	on := true
	if err := h.SetLight(ctx, "Lamp", Command{On: &on}); !errors.Is(err, context.Canceled) {
		t.Errorf("SetLight = %v, want context.Canceled", err)
	}
}

func TestHue_Unreachable(t *testing.T) {
	_, srv := newFakeBridge(t)
	h := newTestHue(srv)
	srv.Close()

	_, err := h.LightNames(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("LightNames() on closed bridge = %v, want ErrUnavailable", err)
	}
}
