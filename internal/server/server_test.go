package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/needledetector/unit-search/internal/apperr"
	"github.com/needledetector/unit-search/internal/ingest"
	"github.com/needledetector/unit-search/internal/snapshot"
	"github.com/needledetector/unit-search/internal/store"
	"github.com/needledetector/unit-search/internal/tabular"
)

func serverTables() map[string]*tabular.Table {
	return map[string]*tabular.Table{
		ingest.TableMembers: {
			Columns: []string{"member_id", "display_name", "alias", "branch", "status"},
			Rows: []tabular.Row{
				{"member_id": "m1", "display_name": "Alice", "alias": "ace", "branch": "A", "status": "active"},
				{"member_id": "m2", "display_name": "Bob", "alias": "", "branch": "B", "status": "active"},
				{"member_id": "m3", "display_name": "Carol", "alias": "cc", "branch": "A", "status": "graduated"},
			},
		},
		ingest.TableMemberGenerations: {
			Columns: []string{"member_id", "generation", "is_primary"},
			Rows: []tabular.Row{
				{"member_id": "m1", "generation": "gen1", "is_primary": "true"},
				{"member_id": "m2", "generation": "gen2", "is_primary": "true"},
				{"member_id": "m3", "generation": "gen1", "is_primary": "true"},
			},
		},
		ingest.TableUnits: {
			Columns: []string{"unit_id", "canonical_name", "note"},
			Rows: []tabular.Row{
				{"unit_id": "u1", "canonical_name": "Duo One", "note": ""},
				{"unit_id": "u2", "canonical_name": "Duo Two", "note": ""},
			},
		},
		ingest.TableUnitMembers: {
			Columns: []string{"unit_id", "member_id", "weight"},
			Rows: []tabular.Row{
				{"unit_id": "u1", "member_id": "m1", "weight": "1"},
				{"unit_id": "u1", "member_id": "m2", "weight": "2"},
				{"unit_id": "u2", "member_id": "m1", "weight": "3"},
				{"unit_id": "u2", "member_id": "m3", "weight": "1"},
			},
		},
	}
}

type failingSource struct{ err error }

func (f *failingSource) Fetch(context.Context) (map[string]*tabular.Table, error) {
	return nil, f.err
}

func newLoadedServer(t *testing.T, opts ...snapshot.Option) *Server {
	t.Helper()
	srv := newEmptyServer(t, opts...)
	_, err := srv.manager.Load(context.Background(), serverTables())
	require.NoError(t, err)
	return srv
}

func newEmptyServer(t *testing.T, opts ...snapshot.Option) *Server {
	t.Helper()
	idx, err := store.NewSQLiteIndex("")
	require.NoError(t, err)
	m := snapshot.NewManager(idx, opts...)
	t.Cleanup(func() { _ = m.Close() })
	return New(m, nil)
}

func doRequest(t *testing.T, srv *Server, method, target, body string) (*http.Response, []byte) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rdr)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	resp := rec.Result()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	return resp, data
}

func TestHealthz(t *testing.T) {
	// Given an empty server
	srv := newEmptyServer(t)

	// Then health reports loading with 503
	resp, body := doRequest(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(body), "loading")

	// And ok with 200 once loaded
	_, err := srv.manager.Load(context.Background(), serverTables())
	require.NoError(t, err)
	resp, body = doRequest(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "ok")
}

func TestMemberSearch(t *testing.T) {
	srv := newLoadedServer(t)

	resp, body := doRequest(t, srv, http.MethodGet, "/api/members/search?q=alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Results []struct {
			MemberID string `json:"member_id"`
		} `json:"results"`
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	require.Equal(t, 1, out.Count)
	assert.Equal(t, "m1", out.Results[0].MemberID)
}

func TestMemberSearch_Facets(t *testing.T) {
	srv := newLoadedServer(t)

	resp, body := doRequest(t, srv, http.MethodGet, "/api/members/search?branch=A&status=active", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Results []struct {
			MemberID string `json:"member_id"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	require.Len(t, out.Results, 1)
	assert.Equal(t, "m1", out.Results[0].MemberID)
}

func TestMemberSearch_BadParams(t *testing.T) {
	srv := newLoadedServer(t)

	resp, _ := doRequest(t, srv, http.MethodGet, "/api/members/search?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doRequest(t, srv, http.MethodGet, "/api/members/search?limit=9999", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doRequest(t, srv, http.MethodGet, "/api/members/search?offset=-1", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMemberSearch_NotLoaded(t *testing.T) {
	srv := newEmptyServer(t)

	resp, _ := doRequest(t, srv, http.MethodGet, "/api/members/search?q=alice", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestUnitLookup(t *testing.T) {
	srv := newLoadedServer(t)

	resp, body := doRequest(t, srv, http.MethodGet, "/api/units/u1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "Duo One")

	resp, _ = doRequest(t, srv, http.MethodGet, "/api/units/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMemberLookup(t *testing.T) {
	srv := newLoadedServer(t)

	resp, body := doRequest(t, srv, http.MethodGet, "/api/members/m2", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "Bob")

	resp, _ = doRequest(t, srv, http.MethodGet, "/api/members/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSimilarity(t *testing.T) {
	srv := newLoadedServer(t)

	resp, body := doRequest(t, srv, http.MethodGet, "/api/similarity?member_id=m1&top=5", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		MemberID string `json:"member_id"`
		Results  []struct {
			MemberID string  `json:"member_id"`
			Score    float64 `json:"score"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "m1", out.MemberID)
	assert.Len(t, out.Results, 2)
}

func TestSimilarity_BadParams(t *testing.T) {
	srv := newLoadedServer(t)

	resp, _ := doRequest(t, srv, http.MethodGet, "/api/similarity", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doRequest(t, srv, http.MethodGet, "/api/similarity?member_id=m1&top=200", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMatch(t *testing.T) {
	srv := newLoadedServer(t)

	resp, body := doRequest(t, srv, http.MethodPost, "/api/match", `{"members":["m1","m3"]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Results []struct {
			UnitID       string  `json:"unit_id"`
			Score        float64 `json:"score"`
			Intersection int     `json:"intersection"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	require.NotEmpty(t, out.Results)
	assert.Equal(t, "u2", out.Results[0].UnitID)
	assert.InDelta(t, 1.0, out.Results[0].Score, 1e-9)
}

func TestMatch_BadBody(t *testing.T) {
	srv := newLoadedServer(t)

	resp, _ := doRequest(t, srv, http.MethodPost, "/api/match", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doRequest(t, srv, http.MethodPost, "/api/match", `{"members":[]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReload_FetchErrorMapsToBadGateway(t *testing.T) {
	src := &failingSource{err: &apperr.FetchError{Name: "members", Err: errors.New("upstream down")}}
	srv := newEmptyServer(t, snapshot.WithSource(src))

	resp, _ := doRequest(t, srv, http.MethodPost, "/api/reload", "")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestReload_ValidationErrorMapsToUnprocessable(t *testing.T) {
	bad := serverTables()
	delete(bad, ingest.TableUnits)
	src := &stubTableSource{tables: bad}
	srv := newEmptyServer(t, snapshot.WithSource(src))

	resp, _ := doRequest(t, srv, http.MethodPost, "/api/reload", "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

type stubTableSource struct {
	tables map[string]*tabular.Table
}

func (s *stubTableSource) Fetch(context.Context) (map[string]*tabular.Table, error) {
	return s.tables, nil
}

func TestReload_Success(t *testing.T) {
	src := &stubTableSource{tables: serverTables()}
	srv := newEmptyServer(t, snapshot.WithSource(src))

	resp, body := doRequest(t, srv, http.MethodPost, "/api/reload", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Version uint64 `json:"version"`
		Members int    `json:"members"`
		Units   int    `json:"units"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, uint64(1), out.Version)
	assert.Equal(t, 3, out.Members)
	assert.Equal(t, 2, out.Units)
}
