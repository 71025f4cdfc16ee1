package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/qnwis/qnwis/internal/registry"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Specs  int               `json:"specs,omitempty"`
	Errors []ValidationIssue `json:"errors,omitempty"`
}

// ValidationIssue is one compile or consistency problem in a spec root.
type ValidationIssue struct {
	Code    string `json:"code"`
	File    string `json:"file,omitempty"`
	Field   string `json:"field,omitempty"`
	Line    int    `json:"line,omitempty"`
	Message string `json:"message"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <specs-dir>",
		Short: "Validate query specs without executing them",
		Long: `Validate CUE query specs without executing any query.

Compiles every spec under the directory, checking source names, transform
steps, constraint types, and id uniqueness. No connector is contacted.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, specsDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	reg, err := registry.Load(specsDir)
	if err != nil {
		if issue, ok := asValidationIssue(err); ok {
			return outputValidationErrors(formatter, []ValidationIssue{issue})
		}
		// Not a content problem: missing root, empty root, IO failure.
		code, _, details := classifyRegistryError(err)
		_ = formatter.Error(code, err.Error(), details)
		return WrapExitError(ExitCommandError, "loading specs", err)
	}

	formatter.VerboseLog("Compiled %d query spec(s) from %s", reg.Len(), specsDir)
	return outputValidateSuccess(formatter, reg.Len())
}

// asValidationIssue converts compile and duplicate errors, the two load
// failures a spec author can fix by editing spec content.
func asValidationIssue(err error) (ValidationIssue, bool) {
	var compileErr *registry.CompileError
	if errors.As(err, &compileErr) {
		issue := ValidationIssue{
			Code:    ErrCodeCompile,
			File:    compileErr.File,
			Field:   compileErr.Field,
			Message: compileErr.Message,
		}
		if compileErr.Pos.IsValid() {
			issue.Line = compileErr.Pos.Line()
		}
		return issue, true
	}

	var dupErr *registry.DuplicateSpecError
	if errors.As(err, &dupErr) {
		return ValidationIssue{
			Code:    ErrCodeDuplicate,
			File:    dupErr.File,
			Field:   dupErr.ID,
			Message: fmt.Sprintf("duplicate query id %q, first defined in %s", dupErr.ID, dupErr.PrevFile),
		}, true
	}

	return ValidationIssue{}, false
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, specs int) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Specs: specs})
	}

	fmt.Fprintln(formatter.Writer, "✓ All specs valid")
	return nil
}

// outputValidationErrors outputs validation errors with exit code 1.
func outputValidationErrors(formatter *OutputFormatter, issues []ValidationIssue) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: issues},
			Error: &CLIError{
				Code:    issues[0].Code,
				Message: issues[0].Message,
			},
			TraceID: formatter.TraceID,
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(issues)))
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, issue := range issues {
		if issue.File != "" && issue.Line > 0 {
			fmt.Fprintf(formatter.Writer, "%s:%d\n", issue.File, issue.Line)
		} else if issue.File != "" {
			fmt.Fprintln(formatter.Writer, issue.File)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", issue.Code, issue.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(issues)))
}
