package vault

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/go-github/v66/github"
)

func newTestVault(t *testing.T, handler http.Handler) *GitHub {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	v, err := NewGitHub("token", "owner/notes", "main")
	if err != nil {
		t.Fatalf("NewGitHub: %v", err)
	}
	client := github.NewClient(srv.Client())
	baseURL, err := url.Parse(srv.URL + "/")
	if err != nil {
		t.Fatalf("parse base url: %v", err)
	}
	client.BaseURL = baseURL
	return v.WithClient(client)
}

func TestGitHubGet(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/owner/notes/contents/ReadQueue/x.md", func(w http.ResponseWriter, r *http.Request) {
		if ref := r.URL.Query().Get("ref"); ref != "main" {
			t.Errorf("expected ref=main, got %q", ref)
		}
		fmt.Fprintf(w, `{"type":"file","encoding":"base64","name":"x.md","path":"ReadQueue/x.md","content":%q,"sha":"f00d"}`,
			base64.StdEncoding.EncodeToString([]byte("# Hello\n")))
	})
	mux.HandleFunc("/repos/owner/notes/contents/ReadQueue", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"type":"file","path":"ReadQueue/a.md"}]`)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Not Found"}`)
	})
	v := newTestVault(t, mux)

	f, err := v.Get(context.Background(), "ReadQueue/x.md")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if f == nil {
		t.Fatal("expected file, got nil")
	}
	if f.Content != "# Hello\n" {
		t.Errorf("unexpected content: %q", f.Content)
	}
	if f.SHA != "f00d" {
		t.Errorf("unexpected sha: %q", f.SHA)
	}

	missing, err := v.Get(context.Background(), "ReadQueue/missing.md")
	if err != nil {
		t.Fatalf("Get missing returned error: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing file, got %+v", missing)
	}

	dir, err := v.Get(context.Background(), "ReadQueue")
	if err != nil {
		t.Fatalf("Get directory returned error: %v", err)
	}
	if dir != nil {
		t.Fatalf("expected nil for directory, got %+v", dir)
	}
}

func TestGitHubPut(t *testing.T) {
	type contentRequest struct {
		Message string `json:"message"`
		Content []byte `json:"content"`
		Branch  string `json:"branch"`
		SHA     string `json:"sha"`
	}
	var got contentRequest

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/owner/notes/contents/Bookmarks/b.md", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT, got %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		fmt.Fprint(w, `{"content":{"sha":"f11e"},"commit":{"sha":"c0ffee"}}`)
	})
	v := newTestVault(t, mux)

	commit, err := v.Put(context.Background(), "Bookmarks/b.md", "body", "Add bookmark", "")
	if err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	if commit != "c0ffee" {
		t.Errorf("expected commit sha c0ffee, got %q", commit)
	}
	if got.SHA != "" {
		t.Errorf("create must not send a sha, got %q", got.SHA)
	}
	if got.Message != "Add bookmark" {
		t.Errorf("unexpected message: %q", got.Message)
	}
	if got.Branch != "main" {
		t.Errorf("unexpected branch: %q", got.Branch)
	}
	if string(got.Content) != "body" {
		t.Errorf("unexpected content: %q", got.Content)
	}

	if _, err = v.Put(context.Background(), "Bookmarks/b.md", "body2", "Update bookmark", "f11e"); err != nil {
		t.Fatalf("Put update returned error: %v", err)
	}
	if got.SHA != "f11e" {
		t.Errorf("update must send the existing sha, got %q", got.SHA)
	}
}

func TestGitHubAppend(t *testing.T) {
	var putBody struct {
		Content []byte `json:"content"`
		SHA     string `json:"sha"`
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/owner/notes/contents/daily.md", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			fmt.Fprintf(w, `{"type":"file","encoding":"base64","content":%q,"sha":"aa"}`,
				base64.StdEncoding.EncodeToString([]byte("start\n")))
		case http.MethodPut:
			if err := json.NewDecoder(r.Body).Decode(&putBody); err != nil {
				t.Errorf("decode request: %v", err)
			}
			fmt.Fprint(w, `{"commit":{"sha":"bb"}}`)
		}
	})
	v := newTestVault(t, mux)

	commit, err := v.Append(context.Background(), "daily.md", "- entry\n", "Append entry")
	if err != nil {
		t.Fatalf("Append returned error: %v", err)
	}
	if commit != "bb" {
		t.Errorf("expected commit sha bb, got %q", commit)
	}
	if string(putBody.Content) != "start\n- entry\n" {
		t.Errorf("unexpected appended content: %q", putBody.Content)
	}
	if putBody.SHA != "aa" {
		t.Errorf("append must reuse the file sha, got %q", putBody.SHA)
	}
}

func TestGitHubList(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/owner/notes/contents/ReadQueue", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"type":"file","path":"ReadQueue/a.md"},
			{"type":"dir","path":"ReadQueue/archive"},
			{"type":"file","path":"ReadQueue/b.md"}
		]`)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Not Found"}`)
	})
	v := newTestVault(t, mux)

	paths, err := v.List(context.Background(), "ReadQueue")
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	want := []string{"ReadQueue/a.md", "ReadQueue/b.md"}
	if len(paths) != len(want) {
		t.Fatalf("expected %d files, got %v", len(want), paths)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("paths[%d] = %q, want %q", i, paths[i], want[i])
		}
	}

	empty, err := v.List(context.Background(), "Nope")
	if err != nil {
		t.Fatalf("List missing folder returned error: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected empty list for missing folder, got %v", empty)
	}
}

func TestNewGitHubRejectsBadRepo(t *testing.T) {
	for _, repo := range []string{"", "justname", "/name", "owner/"} {
		if _, err := NewGitHub("t", repo, "main"); err == nil {
			t.Errorf("expected error for repo %q", repo)
		}
	}
}
