package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rhuss/datagem/pkg/api"
)

func TestReadCSV(t *testing.T) {
	ds, err := readCSV(strings.NewReader("name,price\nwidget,9.5\ngadget,\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(ds) != 2 {
		t.Fatalf("rows = %d, want 2", len(ds))
	}
	if ds[0]["name"] != "widget" || ds[0]["price"] != 9.5 {
		t.Errorf("row 0 = %v", ds[0])
	}
	if ds[1]["price"] != nil {
		t.Errorf("empty cell = %v, want nil", ds[1]["price"])
	}
}

func TestLoadDataset_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	if err := os.WriteFile(path, []byte(`[{"a":1},{"a":2}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	ds, err := loadDataset(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(ds) != 2 || ds[1]["a"] != float64(2) {
		t.Errorf("dataset = %v", ds)
	}
}

func TestRun_StreamsAnswer(t *testing.T) {
	var got api.ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat" {
			t.Errorf("path = %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, "The answer ")
		io.WriteString(w, "is 42.")
	}))
	defer srv.Close()

	var out strings.Builder
	if err := run(context.Background(), srv.URL+"/", "", "what?", &out); err != nil {
		t.Fatal(err)
	}
	if out.String() != "The answer is 42.\n" {
		t.Errorf("output = %q", out.String())
	}
	if got.Message != "what?" {
		t.Errorf("message = %q", got.Message)
	}
}

func TestRun_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(api.ErrorResponse{Error: api.NewTooManyRequestsError("all keys exhausted")})
	}))
	defer srv.Close()

	err := run(context.Background(), srv.URL, "", "hi", io.Discard)
	if err == nil || !strings.Contains(err.Error(), "all keys exhausted") {
		t.Errorf("err = %v", err)
	}
}
