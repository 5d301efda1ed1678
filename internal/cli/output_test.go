package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexmeshworkshop/dds/internal/collections"
	"github.com/hexmeshworkshop/dds/internal/engine"
	"github.com/hexmeshworkshop/dds/internal/foldertype"
	"github.com/hexmeshworkshop/dds/internal/settings"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Success(TypeofResult{Path: "/data/M1", Type: "step"}, func(io.Writer) error {
		t.Fatal("text renderer called in json mode")
		return nil
	})
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   TypeofResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "step", resp.Data.Type)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	require.NoError(t, formatter.Error("missing_file", "no tet.mesh", map[string]string{"folder": "M1"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "missing_file", resp.Error.Code)
	assert.Equal(t, "no tet.mesh", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success("plain", nil))
	assert.Equal(t, "plain\n", buf.String())

	buf.Reset()
	require.NoError(t, formatter.Success(nil, func(w io.Writer) error {
		_, err := io.WriteString(w, "rendered\n")
		return err
	}))
	assert.Equal(t, "rendered\n", buf.String())
}

func TestOutputFormatter_TextErrorGoesToErrWriter(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: out, ErrWriter: errOut, Verbose: true}

	require.NoError(t, formatter.Error("config", "no settings", "details"))
	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "Error [config]: no settings")
	assert.Contains(t, errOut.String(), "Details: details")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut}

	formatter.VerboseLog("hidden %d", 1)
	assert.Empty(t, errOut.String())

	formatter.Verbose = true
	formatter.VerboseLog("shown %d", 2)
	assert.Equal(t, "shown 2\n", errOut.String())
	assert.Empty(t, out.String())
}

func TestExitError(t *testing.T) {
	inner := errors.New("boom")
	err := WrapExitError(ExitSubprocess, "Gmsh failed", inner)
	assert.Equal(t, "Gmsh failed: boom", err.Error())
	assert.ErrorIs(t, err, inner)

	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitSubprocess, GetExitCode(fmt.Errorf("wrapped: %w", err)))
	assert.Equal(t, ExitFailure, GetExitCode(inner))
	assert.Equal(t, "plain", NewExitError(ExitFailure, "plain").Error())
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{foldertype.AmbiguousType.Wrap(&foldertype.AmbiguousTypeError{Path: "/d", Candidates: []string{"a", "b"}}), "ambiguous_type"},
		{collections.CollectionError.Wrap(&collections.TypeMismatchError{Collection: "X"}), "collection_type"},
		{settings.ConfigError.New("x"), "config"},
		{foldertype.NoMatchingType.New("x"), "no_matching_type"},
		{engine.OutputAlreadyExists.New("x"), "output_exists"},
		{engine.MissingFile.New("x"), "missing_file"},
		{engine.HookError.New("x"), "hook"},
		{engine.WrongFolderType.New("x"), "wrong_folder_type"},
		{foldertype.Invalid.New("x"), "invalid_folder"},
		{engine.ErrOutsideDataRoot.New("x"), "outside_data_root"},
		{collections.CollectionError.New("x"), "collection"},
		{NewExitError(ExitSubprocess, "x"), "subprocess"},
		{errors.New("x"), "error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorCode(fmt.Errorf("ctx: %w", tt.err)), "%v", tt.err)
	}
}

func TestReportError(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	amb := foldertype.AmbiguousType.Wrap(&foldertype.AmbiguousTypeError{Path: "/d", Candidates: []string{"step", "tet-mesh"}})

	code := ReportError(out, errOut, "json", false, WrapExitError(ExitFailure, "cannot open folder", amb))
	assert.Equal(t, ExitFailure, code)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "ambiguous_type", resp.Error.Code)
	assert.Equal(t, map[string]any{"path": "/d", "candidates": []any{"step", "tet-mesh"}}, resp.Error.Details)

	assert.Equal(t, ExitSuccess, ReportError(out, errOut, "text", false, nil))
}
