package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gagyebu/internal/core"
	applog "gagyebu/internal/log"
	"gagyebu/internal/services"
	"gagyebu/internal/storage"
)

const statementCSV = "거래일자,가맹점명,이용금액\n" +
	"2025-01-15,스타벅스,\"5,000\"\n" +
	"2025-01-16,이마트,32000\n"

const cardMapping = `{"date":"거래일자","merchant":"가맹점명","amount":"이용금액"}`

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("database is closed") }

func newTestServer(t *testing.T, opts Options) (*Server, *storage.SQLiteRepository) {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	svc := services.NewImportService(repo, nil, services.ImportConfig{})
	logger := applog.New(applog.Config{Level: slog.LevelError, Output: io.Discard})
	s := NewServer(":0", svc, repo, opts, logger)
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	return s, repo
}

func multipartRequest(t *testing.T, path, filename string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)
	return rec
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Error
}

func TestHealthAndReady(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", rec.Body.String())

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.True(t, strings.HasPrefix(rec.Header().Get("X-Request-ID"), "req_"))

	s.pinger = failingPinger{}
	rec = serve(s, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPreview(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	rec := serve(s, multipartRequest(t, "/api/imports/preview", "신한카드_202501.csv", []byte(statementCSV), nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got struct {
		Filename         string             `json:"filename"`
		Headers          []string           `json:"headers"`
		RowCount         int                `json:"rowCount"`
		Preview          [][]string         `json:"preview"`
		SuggestedMapping core.ColumnMapping `json:"suggestedMapping"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "신한카드_202501.csv", got.Filename)
	assert.Equal(t, []string{"거래일자", "가맹점명", "이용금액"}, got.Headers)
	assert.Equal(t, 2, got.RowCount)
	assert.Len(t, got.Preview, 2)
	assert.Equal(t, "거래일자", got.SuggestedMapping[core.FieldDate].Header)
	assert.Equal(t, "이용금액", got.SuggestedMapping[core.FieldAmount].Header)
}

func TestPreviewErrors(t *testing.T) {
	s, _ := newTestServer(t, Options{MaxUploadBytes: 1024})

	tests := []struct {
		name     string
		filename string
		data     []byte
		want     int
	}{
		{name: "unsupported extension", filename: "statement.pdf", data: []byte("%PDF-1.4"), want: http.StatusUnsupportedMediaType},
		{name: "empty file", filename: "statement.csv", data: []byte("   \n"), want: http.StatusUnprocessableEntity},
		{name: "header only", filename: "statement.csv", data: []byte("거래일자,이용금액\n"), want: http.StatusUnprocessableEntity},
		{name: "too large", filename: "statement.csv", data: bytes.Repeat([]byte("a"), 200<<10), want: http.StatusRequestEntityTooLarge},
		{name: "missing file", filename: "", want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(s, multipartRequest(t, "/api/imports/preview", tt.filename, tt.data, map[string]string{"note": "x"}))
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.NotEmpty(t, errorMessage(t, rec))
		})
	}
}

func TestCommitListAndExport(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	commit := func(user string) services.CommitResult {
		req := multipartRequest(t, "/api/imports/commit", "신한카드_202501.csv", []byte(statementCSV),
			map[string]string{"mapping": cardMapping})
		req.Header.Set("X-User-ID", user)
		rec := serve(s, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var res services.CommitResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		return res
	}

	first := commit("u1")
	assert.Equal(t, 2, first.Imported)
	assert.Equal(t, "신한카드", first.AccountName)
	assert.NotEmpty(t, first.ImportFileID)

	second := commit("u1")
	assert.Equal(t, 0, second.Imported)
	assert.Equal(t, 2, second.DuplicatesSkipped)

	other := commit("u2")
	assert.Equal(t, 2, other.Imported, "duplicates are scoped per user")

	req := httptest.NewRequest(http.MethodGet, "/api/imports", nil)
	req.Header.Set("X-User-ID", "u1")
	rec := serve(s, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var files []struct {
		ID       string `json:"id"`
		Imported int    `json:"imported"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &files))
	require.Len(t, files, 2)
	assert.Equal(t, second.ImportFileID, files[0].ID)

	req = httptest.NewRequest(http.MethodGet, "/api/imports/"+first.ImportFileID+"/export?format=csv", nil)
	req.Header.Set("X-User-ID", "u1")
	rec = serve(s, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\ufeff")))
	assert.Contains(t, rec.Body.String(), "스타벅스")

	// imports of other users are hidden
	req = httptest.NewRequest(http.MethodGet, "/api/imports/"+first.ImportFileID+"/export?format=csv", nil)
	req.Header.Set("X-User-ID", "u2")
	assert.Equal(t, http.StatusNotFound, serve(s, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/api/imports/"+first.ImportFileID+"/export?format=pdf", nil)
	req.Header.Set("X-User-ID", "u1")
	assert.Equal(t, http.StatusBadRequest, serve(s, req).Code)
}

func TestCommitDefaultsUser(t *testing.T) {
	s, repo := newTestServer(t, Options{DefaultUserID: "household"})

	rec := serve(s, multipartRequest(t, "/api/imports/commit", "statement.csv", []byte(statementCSV),
		map[string]string{"mapping": cardMapping, "accountName": "우리은행 입출금"}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	files, err := repo.ListImportFiles(context.Background(), "household")
	require.NoError(t, err)
	require.Len(t, files, 1)

	var res services.CommitResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "우리은행 입출금", res.AccountName)
}

func TestCommitErrors(t *testing.T) {
	s, repo := newTestServer(t, Options{})

	tests := []struct {
		name    string
		mapping string
		data    string
		want    int
	}{
		{name: "missing mapping", mapping: "", data: statementCSV, want: http.StatusUnprocessableEntity},
		{name: "malformed mapping", mapping: `{"date":`, data: statementCSV, want: http.StatusUnprocessableEntity},
		{name: "mapping without amount", mapping: `{"date":"거래일자"}`, data: statementCSV, want: http.StatusUnprocessableEntity},
		{name: "unknown column", mapping: `{"date":"일자","amount":"이용금액"}`, data: statementCSV, want: http.StatusUnprocessableEntity},
		{name: "no valid rows", mapping: cardMapping, data: "거래일자,가맹점명,이용금액\n합계,,\n", want: http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := map[string]string{}
			if tt.mapping != "" {
				fields["mapping"] = tt.mapping
			}
			rec := serve(s, multipartRequest(t, "/api/imports/commit", "statement.csv", []byte(tt.data), fields))
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}

	files, err := repo.ListImportFiles(context.Background(), "default")
	require.NoError(t, err)
	assert.Empty(t, files, "failed commits must not persist anything")
}

func TestRateLimitAppliesToPOST(t *testing.T) {
	s, _ := newTestServer(t, Options{RateLimitPerMinute: 1})

	first := serve(s, multipartRequest(t, "/api/imports/preview", "a.csv", []byte(statementCSV), nil))
	assert.Equal(t, http.StatusOK, first.Code)

	second := serve(s, multipartRequest(t, "/api/imports/preview", "a.csv", []byte(statementCSV), nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "60", second.Header().Get("Retry-After"))

	// reads are not limited
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serve(s, httptest.NewRequest(http.MethodGet, "/api/imports", nil)).Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/imports/commit", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestShutdownLogsTrafficSummary(t *testing.T) {
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	var buf bytes.Buffer
	logger := applog.New(applog.Config{Format: "json", Output: &buf})
	s := NewServer(":0", services.NewImportService(repo, nil, services.ImportConfig{}), repo, Options{}, logger)

	serve(s, multipartRequest(t, "/api/imports/preview", "a.csv", []byte(statementCSV), nil))
	serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NoError(t, s.Shutdown(context.Background()))

	var summary map[string]any
	dec := json.NewDecoder(&buf)
	for dec.More() {
		var line map[string]any
		require.NoError(t, dec.Decode(&line))
		if line["msg"] == "HTTP server shutting down" {
			summary = line
		}
	}
	require.NotNil(t, summary, buf.String())
	assert.Equal(t, float64(2), summary[applog.FieldRequestsServed])
	assert.Equal(t, float64(1), summary[applog.FieldActiveClients], "only POST routes are rate limited")
	assert.Equal(t, applog.ComponentHTTP, summary[applog.FieldComponent])
}
