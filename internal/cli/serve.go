package cli

import (
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kevindweb/loadgen/internal/constants"
	"github.com/kevindweb/loadgen/pkg/server"
)

func newServeCommand(stderr io.Writer) *cobra.Command {
	var (
		opts     server.Options
		logLevel string
		noColor  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the in-memory mock store",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(stderr, logLevel, noColor)
			if err != nil {
				return err
			}
			opts.Logger = logger

			s, err := server.StartOptions(opts)
			if err != nil {
				return err
			}

			<-cmd.Context().Done()
			logger.Info().Msg("shutting down mock store")
			return s.Stop()
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.Host, "host", constants.DefaultHost, "listen host")
	flags.IntVar(&opts.Port, "port", constants.DefaultPort, "listen port")
	flags.IntVar(&opts.Loops, "loops", 1, "event loops")
	flags.StringVar(&logLevel, "log-level", zerolog.InfoLevel.String(), "log level")
	flags.BoolVar(&noColor, "no-color", false, "disable colored logs")
	return cmd
}
