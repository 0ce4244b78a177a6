package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/layoutdb/internal/config"
)

// effectiveConfig renders as CUE in text mode and as the decoded struct in
// JSON mode.
type effectiveConfig struct {
	config.Config
}

func (c effectiveConfig) WriteText(w io.Writer) error {
	src, err := config.Format(c.Config)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, src)
	return err
}

// NewConfigCommand creates the config command.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration after applying schema defaults to the file
given with --config. Without --config only the defaults are shown.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.formatter(cmd).Success(effectiveConfig{rootOpts.Config})
		},
	}
}
