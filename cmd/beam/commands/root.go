package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/beamspace/beam/cmd/beam/config"
	"github.com/beamspace/beam/cmd/beam/tui/app"
	"github.com/beamspace/beam/internal/archive"
	"github.com/beamspace/beam/internal/engine"
	"github.com/beamspace/beam/internal/state"
	"github.com/beamspace/beam/internal/worker"
)

// -------------------------------------------------------- Root -------------------------------------------------------

// Root is the top level `beam` command. Running it without a subcommand
// starts the interactive interface.
func Root(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "beam",
		Short: "Beam is a quick and easy file transfer utility, sharing files through redeemable tickets.",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Init(); err != nil {
				return fmt.Errorf("initializing config: %w", err)
			}
			if err := viper.BindPFlag("verbose", cmd.Flags().Lookup("verbose")); err != nil {
				return fmt.Errorf("binding verbose flag: %w", err)
			}
			if err := viper.BindPFlag("listen_addr", cmd.Flags().Lookup("listen")); err != nil {
				return fmt.Errorf("binding listen flag: %w", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			logFile, err := setupLoggingFromViper("app")
			if err != nil {
				return err
			}
			if logFile != nil {
				defer logFile.Close()
			}
			return runApp(version)
		},
	}
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug information to a `.beam-[command].log` file in the current directory")
	rootCmd.PersistentFlags().StringP("listen", "l", "", listenFlagDesc)

	rootCmd.AddCommand(Share(version))
	rootCmd.AddCommand(Get(version))
	rootCmd.AddCommand(Config())
	rootCmd.AddCommand(Version(version))
	return rootCmd
}

// ------------------------------------------------------ Handlers -----------------------------------------------------

func runApp(version string) error {
	archive.RemoveTemporaryFiles(archive.SEND_TEMP_FILE_NAME_PREFIX)
	defer archive.RemoveTemporaryFiles(archive.SEND_TEMP_FILE_NAME_PREFIX)

	listenAddr, err := listenAddrFromViper()
	if err != nil {
		return err
	}

	// The store pokes the wake channel on every mutation so that the
	// interface redraws without waiting for the next frame tick.
	wake := make(chan struct{}, 1)
	store := state.NewStore(state.WithNotify(func() {
		select {
		case wake <- struct{}{}:
		default:
		}
	}))

	eng := engine.New(engine.WithListenAddr(listenAddr), engine.WithLogger(zap.NewNop()))
	defer eng.Close()

	w := worker.New(store, eng)
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(context.Background())
	}()

	program := app.New(store, w, wake,
		app.WithVersion(version),
		app.WithDownloadDir(viper.GetString("download_dir")),
	)
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("running tui: %w", err)
	}
	w.Stop()
	<-done
	fmt.Println("")
	return nil
}

func listenAddrFromViper() (string, error) {
	listenAddr := viper.GetString("listen_addr")
	if err := validateAddress(listenAddr); err != nil {
		return "", fmt.Errorf("%w: (%s) is not a valid listen address", err, listenAddr)
	}
	return listenAddr, nil
}
