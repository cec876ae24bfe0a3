package client

import (
	"net/http"
	"net/http/httptest"
	"testing"

	json "github.com/json-iterator/go"

	"github.com/stretchr/testify/assert"
)

func TestOpen(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/databases", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req OpenDatabaseRequest
		err := json.NewDecoder(r.Body).Decode(&req)
		assert.NoError(t, err)
		assert.Equal(t, "/data/app.db", req.Path)

		resp := OpenDatabaseResponse{
			HandleID: "handle-1",
			Path:     req.Path,
			ReadOnly: false,
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	cli := NewEngineClient(server.URL)
	resp, err := cli.Open(OpenDatabaseRequest{
		Path:  "/data/app.db",
		Flags: []string{"CREATE_IF_NECESSARY"},
	})

	assert.NoError(t, err)
	assert.NotNil(t, resp)
	assert.Equal(t, "handle-1", resp.HandleID)
	assert.Equal(t, "/data/app.db", resp.Path)
}

func TestQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/databases/handle-1/query", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req QueryRequest
		err := json.NewDecoder(r.Body).Decode(&req)
		assert.NoError(t, err)
		assert.Equal(t, "SELECT * FROM users", req.SQL)

		resp := QueryResponse{
			Columns: []string{"id", "name"},
			Rows:    [][]any{{1, "ada"}, {2, "grace"}},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	cli := NewEngineClient(server.URL)
	result, err := cli.Query("handle-1", "SELECT * FROM users")

	assert.NoError(t, err)
	assert.NotNil(t, result)
	assert.Equal(t, []string{"id", "name"}, result.Columns)
	assert.Len(t, result.Rows, 2)
}

func TestExecuteError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"syntax error at offset 0","kind":"syntax"}`))
	}))
	defer server.Close()

	cli := NewEngineClient(server.URL)
	err := cli.Execute("handle-1", "SELEC broken")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "syntax")
}
