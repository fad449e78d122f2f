package cli

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/unifiedrunner/internal/connstr"
	"github.com/roach88/unifiedrunner/internal/testformat"
)

// MergeURIOptions holds flags for the merge-uri command.
type MergeURIOptions struct {
	*RootOptions
	Options string // YAML or JSON mapping of URI options
}

// MergeURIResult is the output of the merge-uri command.
type MergeURIResult struct {
	URI string `json:"uri"`
}

// NewMergeURICommand creates the merge-uri command.
func NewMergeURICommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MergeURIOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "merge-uri <base-uri>",
		Short: "Apply uriOptions overrides to a connection string",
		Long: `Merge a client entity's uriOptions into a base connection string.

Options in --options replace options of the same name in the base string;
other base options are kept in order and the overrides follow in sorted
order.

Examples:
  unifiedrunner merge-uri "mongodb://localhost/?w=1" --options "{w: majority, retryWrites: false}"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMergeURI(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Options, "options", "", "uriOptions mapping (YAML or JSON)")

	return cmd
}

func runMergeURI(opts *MergeURIOptions, base string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	var overrides testformat.Document
	if opts.Options != "" {
		if err := yaml.Unmarshal([]byte(opts.Options), &overrides); err != nil {
			return formatter.fail(ExitCommandError, ErrCodeInvalidArgs, "parsing --options", err)
		}
		if overrides == nil {
			overrides = testformat.Document{}
		}
	}

	merged := connstr.MergeURIOptions(base, overrides)
	formatter.VerboseLog("merged %d option(s) into %s", len(overrides), base)
	return formatter.Success(MergeURIResult{URI: merged}, merged)
}
