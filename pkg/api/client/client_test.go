package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const testEnvID = "0b7c1f44-0d1e-4c55-9f0b-0b7c1f440d1e"

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cli, err := New(srv.URL, WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return cli
}

func writeBody(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func sampleEnv(duration int32) Env {
	return Env{
		ID:        testEnvID,
		Name:      "sandbox1",
		Owner:     "alice",
		Group:     "team-a",
		Duration:  duration,
		EnvType:   EnvTypeDev,
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestNewNormalisesBaseURL(t *testing.T) {
	cases := map[string]string{
		"":                        defaultBaseURL,
		"localhost:9000":          "http://localhost:9000",
		"https://api.example/":    "https://api.example",
		"  http://127.0.0.1:8000 ": "http://127.0.0.1:8000",
	}
	for in, want := range cases {
		cli, err := New(in)
		if err != nil {
			t.Fatalf("New(%q): %v", in, err)
		}
		if cli.baseURL != want {
			t.Fatalf("New(%q) base = %q, want %q", in, cli.baseURL, want)
		}
	}
}

func TestCreateEnvSendsPayload(t *testing.T) {
	cli := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/envs" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Fatalf("content type = %q", ct)
		}
		var got map[string]any
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if got["name"] != "sandbox1" || got["env_type"] != "dev" || got["duration"] != float64(8) {
			t.Fatalf("unexpected payload %v", got)
		}
		writeBody(w, http.StatusOK, sampleEnv(8))
	})

	env, err := cli.CreateEnv(context.Background(), CreateInput{
		Name: "sandbox1", Owner: "alice", Group: "team-a", Duration: 8, EnvType: EnvTypeDev,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if env.ID != testEnvID || env.Duration != 8 {
		t.Fatalf("unexpected env %+v", env)
	}
	if env.UpdatedAt != nil {
		t.Fatalf("expected nil updated_at, got %v", env.UpdatedAt)
	}
}

func TestUpdateEnvOmitsNilFields(t *testing.T) {
	cli := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/envs/"+testEnvID {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		raw, _ := io.ReadAll(r.Body)
		if string(raw) != `{"owner":"bob"}` {
			t.Fatalf("unexpected body %s", raw)
		}
		env := sampleEnv(8)
		env.Owner = "bob"
		now := time.Now().UTC()
		env.UpdatedAt = &now
		writeBody(w, http.StatusOK, env)
	})

	owner := "bob"
	env, err := cli.UpdateEnv(context.Background(), testEnvID, UpdateInput{Owner: &owner})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if env.Owner != "bob" || env.UpdatedAt == nil {
		t.Fatalf("unexpected env %+v", env)
	}
}

func TestExtendEnvUsesQueryParameter(t *testing.T) {
	cli := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/envs/"+testEnvID+"/extend" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.URL.Query().Get("extra_duration"); got != "-3" {
			t.Fatalf("extra_duration = %q", got)
		}
		writeBody(w, http.StatusOK, sampleEnv(5))
	})

	env, err := cli.ExtendEnv(context.Background(), testEnvID, -3)
	if err != nil {
		t.Fatalf("extend: %v", err)
	}
	if env.Duration != 5 {
		t.Fatalf("duration = %d, want 5", env.Duration)
	}
}

func TestDeleteEnvReturnsConfirmation(t *testing.T) {
	cli := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Fatalf("unexpected method %s", r.Method)
		}
		writeBody(w, http.StatusOK, map[string]string{"detail": "Environment deleted successfully"})
	})

	msg, err := cli.DeleteEnv(context.Background(), testEnvID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if msg != "Environment deleted successfully" {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestNotFoundSurfacesDetail(t *testing.T) {
	cli := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, http.StatusNotFound, map[string]string{"detail": "Environment not found"})
	})

	_, err := cli.GetEnv(context.Background(), testEnvID)
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	var apiErr APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "Environment not found" {
		t.Fatalf("unexpected error %#v", err)
	}
}

func TestValidationErrorCarriesFields(t *testing.T) {
	cli := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, http.StatusUnprocessableEntity, map[string]any{
			"detail": "validation failed",
			"errors": []map[string]string{{"field": "env_type", "message": "must be one of: dev, stage"}},
		})
	})

	_, err := cli.CreateEnv(context.Background(), CreateInput{Name: "x", Owner: "y", Group: "z", EnvType: "prod"})
	var apiErr APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusUnprocessableEntity || len(apiErr.Fields) != 1 || apiErr.Fields[0].Field != "env_type" {
		t.Fatalf("unexpected error %#v", apiErr)
	}
	if !strings.Contains(err.Error(), "env_type: must be one of") {
		t.Fatalf("error text missing field detail: %s", err)
	}
	if IsNotFound(err) {
		t.Fatalf("422 must not report not found")
	}
}

func TestNonJSONErrorBodyIsKept(t *testing.T) {
	cli := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	})

	err := cli.Ready(context.Background())
	var apiErr APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadGateway || apiErr.Message != "upstream exploded" {
		t.Fatalf("unexpected error %#v", err)
	}
}

func TestHealthReturnsWelcomeMessage(t *testing.T) {
	cli := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		writeBody(w, http.StatusOK, map[string]string{"message": "Welcome to the Dev Environment Management API"})
	})

	msg, err := cli.Health(context.Background())
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if msg != "Welcome to the Dev Environment Management API" {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestEnvTypeValid(t *testing.T) {
	for _, typ := range []EnvType{EnvTypeDev, EnvTypeStage} {
		if !typ.Valid() {
			t.Fatalf("%q should be valid", typ)
		}
	}
	for _, typ := range []EnvType{"", "prod", "DEV"} {
		if typ.Valid() {
			t.Fatalf("%q should be invalid", typ)
		}
	}
}
