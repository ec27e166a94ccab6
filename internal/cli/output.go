package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Process exit codes.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // a ledger error code was reported or a scenario failed
	ExitCommandError = 2 // flags, configuration or patch input could not be used
)

// ExitError carries the process exit code out of a command.
type ExitError struct {
	Code    int
	Message string
	Err     error

	// Reported means the failure already went through a Printer and main
	// must stay quiet.
	Reported bool
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// reported is the ExitFailure returned after a Printer has shown message.
func reported(message string) *ExitError {
	return &ExitError{Code: ExitFailure, Message: message, Reported: true}
}

// IsReported reports whether err was already shown to the user.
func IsReported(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr) && exitErr.Reported
}

// GetExitCode maps err to a process exit code; errors that are not an
// ExitError exit with ExitFailure.
func GetExitCode(err error) int {
	if exitErr := (*ExitError)(nil); errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Printer writes command results either as a JSON Envelope or as text.
// Verbose notes go to ErrWriter so JSON on Writer stays parseable.
type Printer struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer
	Verbose   bool
}

// Envelope is the JSON shape of every command's output.
type Envelope struct {
	Status string         `json:"status"`
	Data   any            `json:"data,omitempty"`
	Error  *EnvelopeError `json:"error,omitempty"`
}

// EnvelopeError holds a ledger error code such as src_file_missing. Details
// carries the full commit response when a commit fails after writing.
type EnvelopeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (p *Printer) json() bool { return p.Format == "json" }

// Print emits data as an ok envelope, or prints it as is in text mode.
func (p *Printer) Print(data any) error {
	if p.json() {
		return json.NewEncoder(p.Writer).Encode(Envelope{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(p.Writer, data)
	return err
}

// Report emits a coded failure. Text mode shows details only when verbose.
func (p *Printer) Report(code, message string, details any) error {
	if p.json() {
		return json.NewEncoder(p.Writer).Encode(Envelope{
			Status: "error",
			Error:  &EnvelopeError{Code: code, Message: message, Details: details},
		})
	}
	if _, err := fmt.Fprintf(p.Writer, "Error [%s]: %s\n", code, message); err != nil {
		return err
	}
	if p.Verbose && details != nil {
		_, err := fmt.Fprintf(p.Writer, "Details: %v\n", details)
		return err
	}
	return nil
}

// Verbosef prints a diagnostic line when verbose is on.
func (p *Printer) Verbosef(format string, args ...any) {
	if !p.Verbose {
		return
	}
	w := p.ErrWriter
	if w == nil {
		w = p.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}

// Result prints data in JSON mode and text otherwise. text has no trailing
// newline.
func (p *Printer) Result(data any, text string) error {
	if p.json() {
		return p.Print(data)
	}
	return p.Print(text)
}
