package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vebland/clipvault/internal/cache"
	"github.com/vebland/clipvault/internal/history"
	"github.com/vebland/clipvault/internal/models"
	"github.com/vebland/clipvault/internal/resolver"
	"github.com/vebland/clipvault/internal/testutil"
)

const testID = "dQw4w9WgXcQ"

type countingProvider struct {
	calls int
	fail  error
}

func (p *countingProvider) FetchMetadata(_ context.Context, reference string) (*models.Record, error) {
	p.calls++
	if p.fail != nil {
		return nil, p.fail
	}
	id := resolver.VideoID(reference)
	return &models.Record{
		ID:      id,
		URL:     resolver.WatchURL(id),
		Title:   "Video " + id,
		Channel: "Test Channel",
	}, nil
}

type staticTranscripts struct {
	text string
	err  error
}

func (f *staticTranscripts) FetchTranscript(_ context.Context, id, format string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type env struct {
	router  http.Handler
	mgr     *cache.Manager
	prov    *countingProvider
	hist    *history.Log
	fetcher *staticTranscripts
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := testutil.TestStore(t)
	hist := testutil.TestHistory(t)

	prov := &countingProvider{}
	mgr := cache.NewManager(store, prov, testutil.Logger())
	mgr.SetHistory(hist)

	fetcher := &staticTranscripts{text: "hello transcript"}
	return &env{
		router:  NewRouter(mgr, hist, fetcher, false, "", nil, 25),
		mgr:     mgr,
		prov:    prov,
		hist:    hist,
		fetcher: fetcher,
	}
}

func (e *env) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, rd)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeRecord(t *testing.T, rec *httptest.ResponseRecorder) models.Record {
	t.Helper()
	var out models.Record
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestGetMetadataMissThenHit(t *testing.T) {
	e := newEnv(t)
	target := "/metadata?url=" + testID

	rec := e.do(t, "GET", target, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	got := decodeRecord(t, rec)
	if got.ID != testID || got.Title != "Video "+testID {
		t.Errorf("record = %+v", got)
	}
	if rec.Header().Get("ETag") == "" {
		t.Error("ETag missing")
	}

	rec = e.do(t, "GET", target, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("second status = %d", rec.Code)
	}
	if e.prov.calls != 1 {
		t.Errorf("provider calls = %d, want 1", e.prov.calls)
	}
}

func TestGetMetadataNotModified(t *testing.T) {
	e := newEnv(t)
	target := "/metadata?url=" + testID

	first := e.do(t, "GET", target, nil)
	etag := first.Header().Get("ETag")
	if etag == "" {
		t.Fatal("no ETag on first response")
	}

	req := httptest.NewRequest("GET", target, nil)
	req.Header.Set("If-None-Match", etag)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotModified {
		t.Fatalf("status = %d, want 304", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("304 carried a body: %q", rec.Body.String())
	}
}

func TestGetMetadataErrors(t *testing.T) {
	e := newEnv(t)

	if rec := e.do(t, "GET", "/metadata", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("missing url: status = %d, want 400", rec.Code)
	}
	if rec := e.do(t, "GET", "/metadata?url=https://example.com/x", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad reference: status = %d, want 400", rec.Code)
	}

	e.prov.fail = fmt.Errorf("upstream sad")
	rec := e.do(t, "GET", "/metadata?url="+testID, nil)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("provider failure: status = %d, want 502", rec.Code)
	}
}

func TestRefreshMetadata(t *testing.T) {
	e := newEnv(t)

	e.do(t, "GET", "/metadata?url="+testID, nil)
	rec := e.do(t, "POST", "/metadata/refresh", RefreshRequest{URL: "https://youtu.be/" + testID})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if e.prov.calls != 2 {
		t.Errorf("provider calls = %d, want 2 (refresh always fetches)", e.prov.calls)
	}

	if rec := e.do(t, "POST", "/metadata/refresh", RefreshRequest{}); rec.Code != http.StatusBadRequest {
		t.Errorf("empty url: status = %d, want 400", rec.Code)
	}
}

func TestListChoices(t *testing.T) {
	e := newEnv(t)

	e.do(t, "GET", "/metadata?url="+testID, nil)
	rec := e.do(t, "GET", "/choices", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var out ChoicesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Total != 1 || len(out.Choices) != 1 {
		t.Fatalf("response = %+v", out)
	}
	if out.Choices[0].Title != "Video "+testID {
		t.Errorf("choice = %+v", out.Choices[0])
	}
}

func TestEvict(t *testing.T) {
	e := newEnv(t)

	for _, id := range []string{"aaaaaaaaaaa", "bbbbbbbbbbb", "ccccccccccc"} {
		e.do(t, "GET", "/metadata?url="+id, nil)
	}

	one := 1
	rec := e.do(t, "POST", "/evict", EvictRequest{Retain: &one})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var out EvictResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Retained != 1 {
		t.Errorf("retained = %d, want 1", out.Retained)
	}

	neg := -2
	if rec := e.do(t, "POST", "/evict", EvictRequest{Retain: &neg}); rec.Code != http.StatusBadRequest {
		t.Errorf("negative retain: status = %d, want 400", rec.Code)
	}
}

func TestEvictDefaultRetain(t *testing.T) {
	e := newEnv(t)
	e.do(t, "GET", "/metadata?url="+testID, nil)

	// No body: the configured default (25) retains everything here.
	rec := e.do(t, "POST", "/evict", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var out EvictResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Retained != 1 {
		t.Errorf("retained = %d, want 1", out.Retained)
	}
}

func TestRemoveRecord(t *testing.T) {
	e := newEnv(t)
	e.do(t, "GET", "/metadata?url="+testID, nil)

	rec := e.do(t, "DELETE", "/records/"+testID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if e.mgr.Len() != 0 {
		t.Error("record still indexed")
	}

	if rec := e.do(t, "DELETE", "/records/not-an-id", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad id: status = %d, want 400", rec.Code)
	}
}

func TestStats(t *testing.T) {
	e := newEnv(t)

	e.do(t, "GET", "/metadata?url="+testID, nil) // miss
	e.do(t, "GET", "/metadata?url="+testID, nil) // hit

	rec := e.do(t, "GET", "/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var out StatsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Stats.Misses != 1 || out.Stats.Hits != 1 || out.Stats.Videos != 1 {
		t.Errorf("stats = %+v", out.Stats)
	}
	if len(out.Top) != 1 || out.Top[0].VideoID != testID || out.Top[0].Count != 2 {
		t.Errorf("top = %+v", out.Top)
	}
}

func TestStatsWithoutHistory(t *testing.T) {
	e := newEnv(t)
	router := NewRouter(e.mgr, nil, nil, false, "", nil, 25)

	req := httptest.NewRequest("GET", "/stats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestTranscript(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, "GET", "/transcript?url="+testID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "hello transcript" {
		t.Errorf("body = %q", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q", ct)
	}

	rec = e.do(t, "GET", "/transcript?url="+testID+"&format=srt&download=1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename="`+testID+`.srt"` {
		t.Errorf("Content-Disposition = %q", cd)
	}

	if rec := e.do(t, "GET", "/transcript?url="+testID+"&format=doc", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad format: status = %d, want 400", rec.Code)
	}
	if rec := e.do(t, "GET", "/transcript", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("missing url: status = %d, want 400", rec.Code)
	}
}

func TestTranscriptFetchFailure(t *testing.T) {
	e := newEnv(t)
	e.fetcher.err = fmt.Errorf("no captions")

	rec := e.do(t, "GET", "/transcript?url="+testID, nil)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	e := newEnv(t)
	router := NewRouter(e.mgr, nil, nil, true, "sekrit", nil, 25)

	send := func(authz string) int {
		req := httptest.NewRequest("GET", "/choices", nil)
		if authz != "" {
			req.Header.Set("Authorization", authz)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send(""); code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", code)
	}
	if code := send("Bearer wrong"); code != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d, want 401", code)
	}
	if code := send("sekrit"); code != http.StatusUnauthorized {
		t.Errorf("bare token: status = %d, want 401", code)
	}
	if code := send("Bearer sekrit"); code != http.StatusOK {
		t.Errorf("valid token: status = %d, want 200", code)
	}
}
