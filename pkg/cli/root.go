package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Options are shared by every subcommand
type Options struct {
	ConfigPath string
	Debug      bool
	Out        io.Writer
	In         io.Reader
}

func DefaultOptions() *Options {
	return &Options{Out: os.Stdout, In: os.Stdin}
}

func NewRootCommand(opts *Options) *cobra.Command {
	root := &cobra.Command{
		Use:           "leaddesk",
		Short:         "Lead capture backend with an admin panel",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if opts.Out != nil {
				cmd.SetOut(opts.Out)
			}
			if opts.In != nil {
				cmd.SetIn(opts.In)
			}
		},
	}
	root.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "Path to config file (default $LEADDESK_CONFIG_PATH or ./config.yaml)")
	root.PersistentFlags().BoolVar(&opts.Debug, "debug", false, "Enable debug logging and the dev CORS policy")

	root.AddCommand(
		NewServeCommand(opts),
		NewAdminCommand(opts),
		NewVersionCommand(),
	)
	return root
}
