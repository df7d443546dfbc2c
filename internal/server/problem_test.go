package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteProblem(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteProblem(rec, Problem{
		Type:     ProblemTypeInternal,
		Title:    "Internal Server Error",
		Status:   http.StatusInternalServerError,
		Detail:   "boom",
		Instance: "/api/v1/devices/r1/upgrade",
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var p Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, "boom", p.Detail)
	assert.Equal(t, "/api/v1/devices/r1/upgrade", p.Instance)
}

func TestProblemHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter)
		status int
		ptype  string
	}{
		{"not found", func(w http.ResponseWriter) { NotFound(w, "d", "/i") }, http.StatusNotFound, ProblemTypeNotFound},
		{"bad request", func(w http.ResponseWriter) { BadRequest(w, "d", "/i") }, http.StatusBadRequest, ProblemTypeBadRequest},
		{"internal", func(w http.ResponseWriter) { InternalError(w, "d", "/i") }, http.StatusInternalServerError, ProblemTypeInternal},
		{"conflict", func(w http.ResponseWriter) { Conflict(w, "d", "/i") }, http.StatusConflict, ProblemTypeConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)

			assert.Equal(t, tt.status, rec.Code)
			var p Problem
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
			assert.Equal(t, tt.ptype, p.Type)
			assert.Equal(t, tt.status, p.Status)
		})
	}
}
