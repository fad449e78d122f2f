package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/unifiedrunner/internal/testformat"
)

// FileValidation is the validation outcome of one test file.
type FileValidation struct {
	Path          string   `json:"path"`
	Valid         bool     `json:"valid"`
	Description   string   `json:"description,omitempty"`
	SchemaVersion string   `json:"schema_version,omitempty"`
	Tests         int      `json:"tests,omitempty"`
	Errors        []string `json:"errors,omitempty"`
}

// ValidationResult holds validation results for every file.
type ValidationResult struct {
	Valid bool             `json:"valid"`
	Files []FileValidation `json:"files"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file>...",
		Short: "Validate unified test files",
		Long: `Validate unified test format files.

Each file is decoded strictly (unknown fields are errors), checked for
structural invariants such as unique entity ids, and validated against the
closed CUE schema of the format.

Exit codes:
  0 - All files valid
  1 - One or more files invalid
  2 - A file could not be read`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	result := ValidationResult{Valid: true, Files: make([]FileValidation, 0, len(paths))}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return formatter.fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("file not found: %s", path), nil)
			}
			return formatter.fail(ExitCommandError, ErrCodeGeneric, fmt.Sprintf("reading %s", path), err)
		}

		fv := validateFile(path, data)
		formatter.VerboseLog("validated %s: valid=%t", path, fv.Valid)
		if !fv.Valid {
			result.Valid = false
		}
		result.Files = append(result.Files, fv)
	}

	text := validationText(result)
	if !result.Valid {
		_ = formatter.Failure(ErrCodeInvalidFile, "validation failed", result, text)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed for %d file(s)", countInvalid(result)))
	}
	return formatter.Success(result, text)
}

// validateFile runs the strict loader and the CUE schema pass. Both run even
// when the first fails so every problem is reported at once.
func validateFile(path string, data []byte) FileValidation {
	fv := FileValidation{Path: path}

	f, err := testformat.Parse(data)
	if err != nil {
		fv.Errors = append(fv.Errors, err.Error())
	} else {
		fv.Description = f.Description
		fv.SchemaVersion = f.SchemaVersion.String()
		fv.Tests = len(f.Tests)
	}
	if err := testformat.ValidateSchema(data); err != nil {
		fv.Errors = append(fv.Errors, "schema: "+err.Error())
	}

	fv.Valid = len(fv.Errors) == 0
	return fv
}

func countInvalid(result ValidationResult) int {
	n := 0
	for _, f := range result.Files {
		if !f.Valid {
			n++
		}
	}
	return n
}

func validationText(result ValidationResult) string {
	var b strings.Builder
	for i, f := range result.Files {
		if i > 0 {
			b.WriteString("\n")
		}
		if f.Valid {
			fmt.Fprintf(&b, "ok      %s (%s, schema %s, %d tests)", f.Path, f.Description, f.SchemaVersion, f.Tests)
			continue
		}
		fmt.Fprintf(&b, "invalid %s", f.Path)
		for _, e := range f.Errors {
			fmt.Fprintf(&b, "\n  %s", strings.ReplaceAll(e, "\n", "\n  "))
		}
	}
	return b.String()
}
