package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

const testEnvID = "0b7c1f44-0d1e-4c55-9f0b-0b7c1f440d1e"

type recordedRequest struct {
	method string
	path   string
	query  string
	body   string
}

type requestLog struct {
	mu   sync.Mutex
	reqs []recordedRequest
}

func (l *requestLog) all() []recordedRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]recordedRequest(nil), l.reqs...)
}

func startAPI(t *testing.T, status int, response any) *requestLog {
	t.Helper()
	seen := &requestLog{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		seen.mu.Lock()
		seen.reqs = append(seen.reqs, recordedRequest{method: r.Method, path: r.URL.Path, query: r.URL.RawQuery, body: string(raw)})
		seen.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(response)
	}))
	t.Cleanup(srv.Close)
	t.Setenv("DEVENV_API_URL", srv.URL)
	return seen
}

func envResponse() map[string]any {
	return map[string]any{
		"id": testEnvID, "name": "sandbox1", "owner": "alice", "group": "team-a",
		"duration": 8, "env_type": "dev", "created_at": "2024-01-01T00:00:00Z",
	}
}

func TestCreatePrintsEnv(t *testing.T) {
	seen := startAPI(t, http.StatusOK, envResponse())

	var out bytes.Buffer
	err := run([]string{"create", "--name", "sandbox1", "--owner", "alice", "--group", "team-a", "--duration", "8"}, &out)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	reqs := seen.all()
	if len(reqs) != 1 || reqs[0].method != http.MethodPost || reqs[0].path != "/envs" {
		t.Fatalf("unexpected requests %+v", reqs)
	}
	if !strings.Contains(reqs[0].body, `"env_type":"dev"`) {
		t.Fatalf("default type not sent: %s", reqs[0].body)
	}
	if !strings.Contains(out.String(), testEnvID) {
		t.Fatalf("output missing id: %s", out.String())
	}
}

func TestCreateRequiresFields(t *testing.T) {
	seen := startAPI(t, http.StatusOK, envResponse())

	err := run([]string{"create", "--name", "sandbox1", "--group", "team-a"}, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "--owner is required") {
		t.Fatalf("expected owner error, got %v", err)
	}
	if reqs := seen.all(); len(reqs) != 0 {
		t.Fatalf("no request expected, got %+v", reqs)
	}
}

func TestUpdateSendsOnlyGivenFlags(t *testing.T) {
	seen := startAPI(t, http.StatusOK, envResponse())

	err := run([]string{"update", "--id", testEnvID, "--owner", "bob", "--type", "stage"}, io.Discard)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	req := seen.all()[0]
	if req.method != http.MethodPut || req.path != "/envs/"+testEnvID {
		t.Fatalf("unexpected request %+v", req)
	}
	if req.body != `{"owner":"bob","env_type":"stage"}` {
		t.Fatalf("unexpected body %s", req.body)
	}
}

func TestExtendPassesAmount(t *testing.T) {
	seen := startAPI(t, http.StatusOK, envResponse())

	if err := run([]string{"extend", "--id", testEnvID, "--by", "4"}, io.Discard); err != nil {
		t.Fatalf("extend: %v", err)
	}
	req := seen.all()[0]
	if req.method != http.MethodPatch || req.path != "/envs/"+testEnvID+"/extend" || req.query != "extra_duration=4" {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestExtendRejectsOutOfRangeAmount(t *testing.T) {
	seen := startAPI(t, http.StatusOK, envResponse())

	err := run([]string{"extend", "--id", testEnvID, "--by", "3000000000"}, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "out of range") {
		t.Fatalf("expected range error, got %v", err)
	}
	if reqs := seen.all(); len(reqs) != 0 {
		t.Fatalf("no request expected, got %+v", reqs)
	}
}

func TestGetNotFoundReturnsDetail(t *testing.T) {
	startAPI(t, http.StatusNotFound, map[string]string{"detail": "Environment not found"})

	err := run([]string{"get", "--id", testEnvID}, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "Environment not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestDeletePrintsConfirmation(t *testing.T) {
	startAPI(t, http.StatusOK, map[string]string{"detail": "Environment deleted successfully"})

	var out bytes.Buffer
	if err := run([]string{"delete", "--id", testEnvID}, &out); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if strings.TrimSpace(out.String()) != "Environment deleted successfully" {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestConfigSetAPIPersists(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", dir)

	if err := run([]string{"config", "set-api", "http://envs.internal:8000"}, io.Discard); err != nil {
		t.Fatalf("config: %v", err)
	}
	path, err := configPath()
	if err != nil {
		t.Fatalf("config path: %v", err)
	}
	if !strings.HasPrefix(path, dir) {
		t.Fatalf("config path %s not under %s", path, dir)
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if !strings.Contains(string(data), "http://envs.internal:8000") {
		t.Fatalf("unexpected config %s", data)
	}
	cfg, err := loadConfig()
	if err != nil || cfg.APIBaseURL != "http://envs.internal:8000" {
		t.Fatalf("load config = %+v, %v", cfg, err)
	}
}

func TestUnknownCommand(t *testing.T) {
	if err := run([]string{"frobnicate"}, io.Discard); err == nil {
		t.Fatalf("expected error for unknown command")
	}
}
