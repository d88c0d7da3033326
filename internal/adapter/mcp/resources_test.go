package mcp_test

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	lfmcp "github.com/Strob0t/LoopForge/internal/adapter/mcp"
	"github.com/Strob0t/LoopForge/internal/domain/artifact"
)

func newResourceServer(t *testing.T, deps lfmcp.ServerDeps) *httptest.Server {
	t.Helper()
	s := lfmcp.NewServer(lfmcp.ServerConfig{Name: "test", Version: "0.1.0"}, deps)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func readResource(t *testing.T, url, sid, uri string) (rpcEnvelope, string) {
	t.Helper()
	body := `{"jsonrpc":"2.0","id":2,"method":"resources/read","params":{"uri":"` + uri + `"}}`
	resp := postJSON(t, url, sid, body)
	env := readEnvelope(t, resp)
	if env.Error != nil {
		return env, ""
	}
	var result struct {
		Contents []struct {
			URI      string `json:"uri"`
			MIMEType string `json:"mimeType"`
			Text     string `json:"text"`
		} `json:"contents"`
	}
	if err := json.Unmarshal(env.Result, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(result.Contents) != 1 {
		t.Fatalf("expected 1 content item, got %d", len(result.Contents))
	}
	if result.Contents[0].URI != uri {
		t.Errorf("expected uri %s, got %s", uri, result.Contents[0].URI)
	}
	return env, result.Contents[0].Text
}

func TestResourcesList(t *testing.T) {
	ts := newResourceServer(t, lfmcp.ServerDeps{
		State:     newMockStateStore(),
		Artifacts: newMockArtifacts(),
	})
	sid := initSession(t, ts.URL)

	resp := postJSON(t, ts.URL, sid, `{"jsonrpc":"2.0","id":2,"method":"resources/list"}`)
	env := readEnvelope(t, resp)
	if env.Error != nil {
		t.Fatalf("resources/list failed: %+v", env.Error)
	}
	var result struct {
		Resources []struct {
			URI string `json:"uri"`
		} `json:"resources"`
	}
	if err := json.Unmarshal(env.Result, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(result.Resources) != 6 {
		t.Fatalf("expected 6 resources, got %d", len(result.Resources))
	}
	uris := make(map[string]bool, len(result.Resources))
	for _, r := range result.Resources {
		uris[r.URI] = true
	}
	for _, want := range []string{
		"loopforge://state",
		"loopforge://events",
		"loopforge://artifacts/spec.md",
		"loopforge://artifacts/plan.md",
		"loopforge://artifacts/handoff.md",
		"loopforge://artifacts/review.md",
	} {
		if !uris[want] {
			t.Errorf("missing resource %s", want)
		}
	}
}

func TestResourceReadState(t *testing.T) {
	state := newMockStateStore()
	state.st.CycleCount = 2
	ts := newResourceServer(t, lfmcp.ServerDeps{State: state})
	sid := initSession(t, ts.URL)

	_, text := readResource(t, ts.URL, sid, "loopforge://state")
	var out map[string]any
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		t.Fatalf("state resource is not JSON: %v", err)
	}
	if out["phase"] != "planning" || out["cycle_count"] != float64(2) {
		t.Errorf("unexpected state payload: %v", out)
	}
}

func TestResourceReadArtifact(t *testing.T) {
	artifacts := newMockArtifacts()
	artifacts.files[artifact.NamePlan] = "# Plan\n\n- step one\n"
	ts := newResourceServer(t, lfmcp.ServerDeps{Artifacts: artifacts})
	sid := initSession(t, ts.URL)

	_, text := readResource(t, ts.URL, sid, "loopforge://artifacts/plan.md")
	if !strings.Contains(text, "step one") {
		t.Errorf("unexpected artifact text: %q", text)
	}

	env, _ := readResource(t, ts.URL, sid, "loopforge://artifacts/review.md")
	if env.Error == nil {
		t.Error("expected an error for a missing artifact")
	}
}
