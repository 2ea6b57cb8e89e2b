package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"metamender/internal/config"
	"metamender/internal/testsupport"
)

type fakeItem struct {
	ID       string `json:"Id"`
	Name     string `json:"Name"`
	Type     string `json:"Type"`
	Overview string `json:"Overview"`
}

// fakeJellyfin serves the handful of endpoints the catalog client uses.
type fakeJellyfin struct {
	mu       sync.Mutex
	items    []fakeItem
	failList bool
	updates  int
}

func (f *fakeJellyfin) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /System/Info", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"ServerName": "test-server", "Version": "10.9.0", "Id": "srv"})
	})
	mux.HandleFunc("GET /Users/{user}/Items", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.failList {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		items := make([]fakeItem, len(f.items))
		copy(items, f.items)
		writeJSON(w, map[string]any{"Items": items, "TotalRecordCount": len(items)})
	})
	mux.HandleFunc("GET /Users/{user}/Items/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		for _, item := range f.items {
			if item.ID == r.PathValue("id") {
				writeJSON(w, item)
				return
			}
		}
		http.NotFound(w, r)
	})
	mux.HandleFunc("POST /Items/{id}", func(w http.ResponseWriter, r *http.Request) {
		var body fakeItem
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		for i := range f.items {
			if f.items[i].ID == r.PathValue("id") {
				f.items[i].Overview = body.Overview
				f.updates++
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		http.NotFound(w, r)
	})
	return mux
}

func (f *fakeJellyfin) overview(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range f.items {
		if item.ID == id {
			return item.Overview
		}
	}
	return ""
}

func (f *fakeJellyfin) updateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updates
}

func (f *fakeJellyfin) setFailList(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failList = fail
}

const generatedText = "A luminous late-night record where brushed drums and a patient tenor saxophone trade long, unhurried phrases."

func newFakeOpenAI(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": generatedText}}},
			"usage":   map[string]int{"prompt_tokens": 30, "completion_tokens": 10, "total_tokens": 40},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

type cliTestEnv struct {
	cfg        *config.Config
	jellyfin   *fakeJellyfin
	configPath string
}

func setupCLITestEnv(t *testing.T, items ...fakeItem) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))

	jf := &fakeJellyfin{items: items}
	jfServer := httptest.NewServer(jf.handler())
	t.Cleanup(jfServer.Close)
	llm := newFakeOpenAI(t)

	cfg := testsupport.NewConfig(t,
		testsupport.WithJellyfin(jfServer.URL),
		testsupport.WithProvider(config.ProviderOpenAI, llm.URL),
	)
	configPath := filepath.Join(base, "metamender.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{cfg: cfg, jellyfin: jf, configPath: configPath}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, configPath string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, fmt.Sprintf("encode: %v", err), http.StatusInternalServerError)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
