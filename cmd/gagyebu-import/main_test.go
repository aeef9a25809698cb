package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gagyebu/internal/core"
)

const statementCSV = "거래일자,가맹점명,이용금액\n" +
	"2025-01-15,스타벅스,\"5,000\"\n" +
	"2025-01-16,이마트,32000\n"

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("SQLITE_DB_PATH", filepath.Join(dir, "gagyebu.db"))
	t.Setenv("AMQP_URL", "")
	t.Setenv("DEFAULT_USER_ID", "cli-user")
	t.Setenv("LOG_LEVEL", "error")

	path := filepath.Join(dir, "신한카드_202501.csv")
	require.NoError(t, os.WriteFile(path, []byte(statementCSV), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), err
}

func TestRootCommandMetadata(t *testing.T) {
	root := newRootCmd(&app{})
	assert.Equal(t, "gagyebu-import", root.Use)
	assert.NotNil(t, root.PersistentPreRunE)
	assert.NotNil(t, root.PersistentFlags().Lookup("user"))

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"preview", "commit", "list", "export"}, names)
}

func TestPreviewCommand(t *testing.T) {
	file := setupEnv(t)

	out, err := execute(t, "preview", file)
	require.NoError(t, err)

	var got struct {
		Headers          []string           `json:"headers"`
		RowCount         int                `json:"rowCount"`
		SuggestedMapping core.ColumnMapping `json:"suggestedMapping"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, []string{"거래일자", "가맹점명", "이용금액"}, got.Headers)
	assert.Equal(t, 2, got.RowCount)
	assert.Equal(t, "이용금액", got.SuggestedMapping[core.FieldAmount].Header)
}

func TestCommitListExport(t *testing.T) {
	file := setupEnv(t)

	out, err := execute(t, "commit", file, "--suggested")
	require.NoError(t, err)
	var first struct {
		Imported     int    `json:"imported"`
		ImportFileID string `json:"importFileId"`
		AccountName  string `json:"accountName"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &first))
	assert.Equal(t, 2, first.Imported)
	assert.Equal(t, "신한카드", first.AccountName)

	out, err = execute(t, "commit", file, "--mapping", `{"date":"거래일자","merchant":"가맹점명","amount":"이용금액"}`)
	require.NoError(t, err)
	var second struct {
		Imported          int `json:"imported"`
		DuplicatesSkipped int `json:"duplicatesSkipped"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &second))
	assert.Equal(t, 0, second.Imported)
	assert.Equal(t, 2, second.DuplicatesSkipped)

	out, err = execute(t, "list")
	require.NoError(t, err)
	var files []core.ImportFile
	require.NoError(t, json.Unmarshal([]byte(out), &files))
	require.Len(t, files, 2)

	out, err = execute(t, "list", "--user", "someone-else")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)

	target := filepath.Join(t.TempDir(), "out.csv")
	out, err = execute(t, "export", first.ImportFileID, "--format", "csv", "--out", target)
	require.NoError(t, err)
	assert.Equal(t, target, strings.TrimSpace(out))

	body, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(body), "스타벅스")
	assert.Contains(t, string(body), "이마트")
}

func TestCommitCommandErrors(t *testing.T) {
	file := setupEnv(t)

	tests := []struct {
		name string
		args []string
		is   error
	}{
		{name: "no mapping flag", args: []string{"commit", file}},
		{name: "both mapping flags", args: []string{"commit", file, "--suggested", "--mapping", "{}"}},
		{name: "malformed mapping", args: []string{"commit", file, "--mapping", "not json"}, is: core.ErrInvalidMapping},
		{name: "mapping without amount", args: []string{"commit", file, "--mapping", `{"date":"거래일자"}`}, is: core.ErrInvalidMapping},
		{name: "missing file", args: []string{"commit", filepath.Join(t.TempDir(), "nope.csv"), "--suggested"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			if tt.is != nil {
				assert.True(t, errors.Is(err, tt.is), "got %v", err)
			}
		})
	}

	out, err := execute(t, "list")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out, "failed commits must not store anything")
}

func TestExportUnknownImport(t *testing.T) {
	setupEnv(t)

	_, err := execute(t, "export", "missing", "--format", "csv", "--out", filepath.Join(t.TempDir(), "x.csv"))
	assert.True(t, errors.Is(err, core.ErrNotFound))

	_, err = execute(t, "export", "missing", "--format", "pdf")
	assert.True(t, errors.Is(err, core.ErrUnsupportedFormat))
}
