package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/hexmeshworkshop/dds/internal/collections"
	"github.com/hexmeshworkshop/dds/internal/engine"
	"github.com/hexmeshworkshop/dds/internal/foldertype"
	"github.com/hexmeshworkshop/dds/internal/settings"
)

// Exit codes for CLI commands.
const (
	ExitSuccess    = 0 // Successful execution
	ExitFailure    = 1 // Bad input, lookup or configuration error
	ExitSubprocess = 2 // A tool exited non-zero and --propagate-exit-code was given
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitSubprocess)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// ErrorCode names the error class of err for JSON output.
func ErrorCode(err error) string {
	var ambiguous *foldertype.AmbiguousTypeError
	var mismatch *collections.TypeMismatchError
	switch {
	case errors.As(err, &ambiguous):
		return "ambiguous_type"
	case errors.As(err, &mismatch):
		return "collection_type"
	case settings.ConfigError.Has(err):
		return "config"
	case foldertype.NoMatchingType.Has(err):
		return "no_matching_type"
	case engine.OutputAlreadyExists.Has(err):
		return "output_exists"
	case engine.MissingFile.Has(err):
		return "missing_file"
	case engine.HookError.Has(err):
		return "hook"
	case engine.WrongFolderType.Has(err):
		return "wrong_folder_type"
	case foldertype.Invalid.Has(err):
		return "invalid_folder"
	case engine.ErrOutsideDataRoot.Has(err):
		return "outside_data_root"
	case collections.CollectionError.Has(err):
		return "collection"
	case GetExitCode(err) == ExitSubprocess:
		return "subprocess"
	default:
		return "error"
	}
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Success outputs a successful result. In text mode text renders it; a nil
// text prints data with fmt.Println.
func (f *OutputFormatter) Success(data any, text func(io.Writer) error) error {
	if f.Format == "json" {
		enc := json.NewEncoder(f.Writer)
		enc.SetEscapeHTML(false)
		return enc.Encode(CLIResponse{Status: "ok", Data: data})
	}
	if text != nil {
		return text(f.Writer)
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.GetErrWriter(), "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.GetErrWriter(), "Details: %v\n", details)
	}
	return nil
}

// VerboseLog outputs a message only if verbose mode is enabled.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// ReportError prints err through a formatter and returns its exit code.
// cmd/dds calls it with the error returned by the root command.
func ReportError(w, errW io.Writer, format string, verbose bool, err error) int {
	if err == nil {
		return ExitSuccess
	}
	if !isValidFormat(format) {
		format = "text"
	}
	f := &OutputFormatter{Format: format, Writer: w, ErrWriter: errW, Verbose: verbose}
	var details any
	var ambiguous *foldertype.AmbiguousTypeError
	var mismatch *collections.TypeMismatchError
	switch {
	case errors.As(err, &ambiguous):
		details = map[string]any{"path": ambiguous.Path, "candidates": ambiguous.Candidates}
	case errors.As(err, &mismatch):
		details = mismatch
	}
	_ = f.Error(ErrorCode(err), err.Error(), details)
	return GetExitCode(err)
}
