package gitee

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/tidwall/gjson"
)

func issueIDs(t *testing.T, body []byte) []string {
	t.Helper()
	root := gjson.ParseBytes(body)
	if !root.IsArray() {
		t.Fatalf("expected array, got %s", body)
	}
	var out []string
	for _, item := range root.Array() {
		out = append(out, item.Get("id").String())
	}
	return out
}

func TestMergeIssues_DedupByID(t *testing.T) {
	first := []byte(`[{"id":1},{"id":2},{"id":3}]`)
	second := []byte(`[{"id":3},{"id":4}]`)

	got, err := MergeIssues(first, second, "", "", 0)
	if err != nil {
		t.Fatalf("MergeIssues: %v", err)
	}
	ids := issueIDs(t, got)
	if len(ids) != 4 {
		t.Fatalf("expected 4 items, got %v", ids)
	}
	seen := map[string]int{}
	for _, id := range ids {
		seen[id]++
	}
	for _, want := range []string{"1", "2", "3", "4"} {
		if seen[want] != 1 {
			t.Fatalf("expected id %s exactly once, got %v", want, ids)
		}
	}
}

func TestMergeIssues_KeepsItemsWithoutID(t *testing.T) {
	got, err := MergeIssues([]byte(`[{"title":"a"},{"id":null,"title":"b"}]`), []byte(`[{"title":"a"}]`), "", "", 0)
	if err != nil {
		t.Fatalf("MergeIssues: %v", err)
	}
	if n := len(gjson.ParseBytes(got).Array()); n != 3 {
		t.Fatalf("expected 3 items, got %d: %s", n, got)
	}
}

func TestMergeIssues_SortAscMissingFirst(t *testing.T) {
	first := []byte(`[{"id":1,"updated_at":"2024-06-01T00:00:00Z"},{"id":2}]`)
	second := []byte(`[{"id":3,"updated_at":"2024-01-01T00:00:00Z"}]`)

	got, err := MergeIssues(first, second, "updated", "asc", 0)
	if err != nil {
		t.Fatalf("MergeIssues: %v", err)
	}
	ids := issueIDs(t, got)
	if strings.Join(ids, ",") != "2,3,1" {
		t.Fatalf("unexpected order: %v", ids)
	}
}

func TestMergeIssues_SortDescByCreatedAndTruncate(t *testing.T) {
	first := []byte(`[{"id":1,"created_at":"2024-01-01T08:00:00+08:00"},{"id":2,"created_at":"not-a-date"}]`)
	second := []byte(`[{"id":3,"created_at":"2024-03-01T00:00:00Z"}]`)

	got, err := MergeIssues(first, second, "created", "", 2)
	if err != nil {
		t.Fatalf("MergeIssues: %v", err)
	}
	ids := issueIDs(t, got)
	if strings.Join(ids, ",") != "3,1" {
		t.Fatalf("unexpected order: %v", ids)
	}
}

func TestMergeIssues_NonArrayReturnsFirst(t *testing.T) {
	first := []byte(`{"message":"oops"}`)
	got, err := MergeIssues(first, []byte(`[{"id":1}]`), "", "", 0)
	if err != nil {
		t.Fatalf("MergeIssues: %v", err)
	}
	if string(got) != string(first) {
		t.Fatalf("expected first returned untouched, got %s", got)
	}
}

func TestFetchIssues_FilterAllMergesTwoFetches(t *testing.T) {
	var mu sync.Mutex
	var filters []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		mu.Lock()
		filters = append(filters, q.Get("filter"))
		mu.Unlock()
		if q.Get("state") != "open" {
			t.Errorf("expected default state=open, got %q", q.Get("state"))
		}
		if q.Get("sort") != "updated" {
			t.Errorf("expected sort forwarded, got %q", q.Get("sort"))
		}
		switch q.Get("filter") {
		case "assigned":
			_, _ = io.WriteString(w, `[{"id":1,"updated_at":"2024-02-01T00:00:00Z"},{"id":2,"updated_at":"2024-05-01T00:00:00Z"}]`)
		case "created":
			_, _ = io.WriteString(w, `[{"id":2,"updated_at":"2024-05-01T00:00:00Z"},{"id":7,"updated_at":"2024-03-01T00:00:00Z"}]`)
		default:
			t.Errorf("unexpected filter %q", q.Get("filter"))
			_, _ = io.WriteString(w, `[]`)
		}
	}))
	defer srv.Close()

	got, err := newTestClient(srv.URL).FetchIssues(context.Background(), "at", map[string]string{
		"filter":   "all",
		"sort":     "updated",
		"per_page": "2",
	})
	if err != nil {
		t.Fatalf("FetchIssues: %v", err)
	}
	if strings.Join(filters, ",") != "assigned,created" {
		t.Fatalf("unexpected upstream filters: %v", filters)
	}
	if ids := issueIDs(t, got); strings.Join(ids, ",") != "2,7" {
		t.Fatalf("unexpected merged ids: %v", ids)
	}
}

func TestFetchIssues_NonAllPassthrough(t *testing.T) {
	const upstream = `[{"id":5},{"id":5}]`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("filter") != "created" || r.URL.Query().Get("state") != "closed" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		_, _ = io.WriteString(w, upstream)
	}))
	defer srv.Close()

	got, err := newTestClient(srv.URL).FetchIssues(context.Background(), "at", map[string]string{"filter": "created", "state": "closed"})
	if err != nil {
		t.Fatalf("FetchIssues: %v", err)
	}
	if string(got) != upstream {
		t.Fatalf("expected untouched body, got %s", got)
	}
}

func TestFetchIssues_DefaultsToAssigned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("filter") != "assigned" {
			t.Errorf("expected default filter=assigned, got %q", r.URL.Query().Get("filter"))
		}
		_, _ = io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	if _, err := newTestClient(srv.URL).FetchIssues(context.Background(), "at", nil); err != nil {
		t.Fatalf("FetchIssues: %v", err)
	}
}
