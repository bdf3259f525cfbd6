// Package api_test provides tests for the API server.
package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/atlas-desktop/portfolio-replay/internal/api"
	"github.com/atlas-desktop/portfolio-replay/internal/data"
	"github.com/atlas-desktop/portfolio-replay/internal/events"
	"github.com/atlas-desktop/portfolio-replay/internal/fixtures"
	"github.com/atlas-desktop/portfolio-replay/internal/session"
	"github.com/atlas-desktop/portfolio-replay/pkg/types"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type testEnv struct {
	ts      *httptest.Server
	session *session.Session
	store   *data.Store
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()

	store, err := data.NewStore(logger, t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create data store: %v", err)
	}

	bus := events.NewEventBus(logger, events.DefaultEventBusConfig())
	sess, err := session.New(logger, session.Options{
		Viewer:    types.DefaultViewerConfig(),
		Scheduler: fixtures.NewManualScheduler(),
		Store:     store,
		Bus:       bus,
	})
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	hub := api.NewHub(logger, api.NewCommands(sess))
	go hub.Run()
	hub.AttachBus(bus, func() interface{} { return sess.State() })

	cfg := types.DefaultServerConfig()
	server := api.NewServer(logger, &cfg, sess, store, hub)
	ts := httptest.NewServer(server.Handler())

	t.Cleanup(func() {
		ts.Close()
		hub.Stop()
		bus.Stop()
		sess.Close()
	})
	return &testEnv{ts: ts, session: sess, store: store}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, e.ts.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	return resp, result
}

func upload(t *testing.T, e *testEnv, files ...types.RawFile) (*http.Response, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		part, err := mw.CreateFormFile("files", f.Name)
		if err != nil {
			t.Fatal(err)
		}
		part.Write(f.Data)
	}
	mw.Close()

	resp, err := http.Post(e.ts.URL+"/api/v1/datasets?save=true", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	defer resp.Body.Close()

	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	return resp, result
}

func TestHealthEndpoint(t *testing.T) {
	env := setupTestServer(t)

	resp, result := env.do(t, "GET", "/api/v1/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if result["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got '%v'", result["status"])
	}
}

func TestUploadAndPlaybackEndpoints(t *testing.T) {
	env := setupTestServer(t)

	resp, result := upload(t, env,
		fixtures.NewResult(10).File("alpha_consolidated_json.json"),
		types.RawFile{Name: "broken.json", Data: []byte("{")},
	)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	if added := result["added"].([]interface{}); len(added) != 1 {
		t.Errorf("Expected 1 added dataset, got %d", len(added))
	}
	if failures := result["failures"].([]interface{}); len(failures) != 1 {
		t.Errorf("Expected 1 failure, got %d", len(failures))
	}
	if !env.store.Exists("alpha_consolidated_json.json") || env.store.Exists("broken.json") {
		t.Error("Only parsed uploads should be saved")
	}

	_, state := env.do(t, "GET", "/api/v1/state", "")
	if state["controlsEnabled"] != true {
		t.Errorf("Expected controls enabled, got %v", state["controlsEnabled"])
	}

	_, result = env.do(t, "POST", "/api/v1/playback/seek", `{"index": 3}`)
	if result["index"] != float64(3) {
		t.Errorf("Expected index 3, got %v", result["index"])
	}
	_, result = env.do(t, "POST", "/api/v1/playback/step", `{"delta": -1}`)
	if result["index"] != float64(2) {
		t.Errorf("Expected index 2, got %v", result["index"])
	}
	_, result = env.do(t, "POST", "/api/v1/playback/speed", `{"ms": 5000}`)
	if result["speedMs"] != float64(2000) {
		t.Errorf("Expected clamped speed 2000, got %v", result["speedMs"])
	}

	resp, _ = env.do(t, "POST", "/api/v1/playback/seek", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Seek without index should be 400, got %d", resp.StatusCode)
	}
	resp, _ = env.do(t, "POST", "/api/v1/playback/seek", "{not json")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Malformed body should be 400, got %d", resp.StatusCode)
	}

	resp, metrics := env.do(t, "GET", "/api/v1/metrics/current", "")
	if resp.StatusCode != http.StatusOK || metrics["step"] != float64(2) {
		t.Errorf("Unexpected metrics %v (%d)", metrics, resp.StatusCode)
	}
}

func TestDatasetEndpoints(t *testing.T) {
	env := setupTestServer(t)
	added, _ := env.session.AddFiles(context.Background(), []types.RawFile{fixtures.NewResult(5).File("a.json")})
	id := added[0].ID

	resp, _ := env.do(t, "PUT", "/api/v1/datasets/"+id+"/color", `{"color": "#00FF00"}`)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Set color failed with %d", resp.StatusCode)
	}
	resp, _ = env.do(t, "PUT", "/api/v1/datasets/"+id+"/color", `{"color": "green"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Invalid color should be 400, got %d", resp.StatusCode)
	}

	resp, rep := env.do(t, "GET", "/api/v1/datasets/"+id+"/report", "")
	if resp.StatusCode != http.StatusOK || rep["steps"] != float64(5) {
		t.Errorf("Unexpected report %v (%d)", rep, resp.StatusCode)
	}

	resp, filters := env.do(t, "POST", "/api/v1/filters/fp/toggle", "")
	if resp.StatusCode != http.StatusOK || filters["falsePositives"] != false {
		t.Errorf("Unexpected filters %v", filters)
	}
	resp, _ = env.do(t, "POST", "/api/v1/filters/bogus/toggle", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Unknown filter should be 400, got %d", resp.StatusCode)
	}

	resp, zoom := env.do(t, "POST", "/api/v1/zoom", `{"start": 1, "end": 3}`)
	if resp.StatusCode != http.StatusOK || zoom["zoomed"] != true {
		t.Errorf("Unexpected zoom response %v", zoom)
	}
	env.do(t, "DELETE", "/api/v1/zoom", "")
	if env.session.State().Zoom.Set {
		t.Error("Zoom should be reset")
	}

	resp, _ = env.do(t, "DELETE", "/api/v1/datasets/"+id, "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Remove failed with %d", resp.StatusCode)
	}
	resp, _ = env.do(t, "DELETE", "/api/v1/datasets/"+id, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Second remove should be 404, got %d", resp.StatusCode)
	}
	resp, _ = env.do(t, "GET", "/api/v1/positions", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Positions without a selection should be 404, got %d", resp.StatusCode)
	}
}

func TestStoreEndpoints(t *testing.T) {
	env := setupTestServer(t)
	if err := env.store.Save("stored.json", fixtures.NewResult(4).JSON()); err != nil {
		t.Fatal(err)
	}

	_, listing := env.do(t, "GET", "/api/v1/store", "")
	if listing["count"] != float64(1) {
		t.Errorf("Expected 1 stored file, got %v", listing["count"])
	}

	resp, ds := env.do(t, "POST", "/api/v1/datasets/store/stored.json", "")
	if resp.StatusCode != http.StatusOK || ds["fileName"] != "stored.json" {
		t.Errorf("Unexpected store load %v (%d)", ds, resp.StatusCode)
	}
	resp, _ = env.do(t, "POST", "/api/v1/datasets/store/missing.json", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Missing stored file should be 404, got %d", resp.StatusCode)
	}
}

func TestFrameEndpoint(t *testing.T) {
	env := setupTestServer(t)
	env.session.AddFiles(context.Background(), []types.RawFile{fixtures.NewResult(8).File("a.json")})

	env.do(t, "PUT", "/api/v1/canvas", `{"width": 400, "height": 300}`)

	resp, err := http.Get(env.ts.URL + "/api/v1/frame.png")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("Expected image/png, got %s", ct)
	}
	img, err := png.Decode(resp.Body)
	if err != nil {
		t.Fatalf("Frame is not a PNG: %v", err)
	}
	if img.Bounds().Dx() != 400 || img.Bounds().Dy() != 300 {
		t.Errorf("Unexpected frame size %v", img.Bounds())
	}
}

func TestWebSocketCommandsAndStateUpdates(t *testing.T) {
	env := setupTestServer(t)
	env.session.AddFiles(context.Background(), []types.RawFile{fixtures.NewResult(10).File("a.json")})

	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	send := func(msg api.WSMessage) {
		if err := conn.WriteJSON(msg); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	read := func() api.WSMessage {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg api.WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		return msg
	}

	send(api.WSMessage{ID: "sub", Type: api.MsgTypeSubscribe, Channel: api.ChannelState})
	if msg := read(); msg.ID != "sub" || msg.Type != api.MsgTypeResponse {
		t.Fatalf("Unexpected subscribe reply %+v", msg)
	}

	send(api.WSMessage{ID: "cmd", Type: api.MsgTypeCommand, Command: "seek", Args: json.RawMessage(`{"index": 4}`)})

	var gotResponse, gotState bool
	for !(gotResponse && gotState) {
		msg := read()
		switch {
		case msg.ID == "cmd" && msg.Type == api.MsgTypeResponse:
			gotResponse = true
			if !strings.Contains(string(msg.Data), `"index":4`) {
				t.Errorf("Unexpected command result %s", msg.Data)
			}
		case msg.Type == api.MsgTypeStateUpdate:
			var snap session.Snapshot
			if err := json.Unmarshal(msg.Data, &snap); err != nil {
				t.Fatalf("Bad state payload: %v", err)
			}
			if snap.Playback.CurrentIndex == 4 {
				gotState = true
			}
		}
	}

	send(api.WSMessage{ID: "bad", Type: api.MsgTypeCommand, Command: "launch"})
	for {
		msg := read()
		if msg.ID == "bad" {
			if msg.Type != api.MsgTypeError || msg.Error == "" {
				t.Errorf("Expected an error reply, got %+v", msg)
			}
			break
		}
	}
}
