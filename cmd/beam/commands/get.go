package commands

import (
	"fmt"

	"github.com/erikgeiser/promptkit/confirmation"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/beamspace/beam/cmd/beam/tui"
	"github.com/beamspace/beam/internal/archive"
	"github.com/beamspace/beam/internal/engine"
	"github.com/beamspace/beam/internal/logger"
	"github.com/beamspace/beam/internal/progress"
	"github.com/beamspace/beam/internal/ticket"
)

// -------------------------------------------------------- Get --------------------------------------------------------

func Get(version string) *cobra.Command {
	getCmd := &cobra.Command{
		Use:   "get ticket",
		Short: "Download the payload a ticket redeems",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return viper.BindPFlag("download_dir", cmd.Flags().Lookup("dest"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			logFile, err := setupLoggingFromViper("get")
			if err != nil {
				return err
			}
			if logFile != nil {
				defer logFile.Close()
			}
			if err := handleGetCommand(cmd, args[0]); err != nil {
				return fmt.Errorf("running get command: %w", err)
			}
			return nil
		},
	}
	getCmd.Flags().StringP("dest", "d", "", "Directory the payload is written to")
	return getCmd
}

// ------------------------------------------------------ Handlers -----------------------------------------------------

// handleGetCommand redeems a ticket without the interactive interface. The
// ticket is parsed up front so malformed input fails before any connection
// is attempted.
func handleGetCommand(cmd *cobra.Command, ticketText string) error {
	archive.RemoveTemporaryFiles(archive.RECEIVE_TEMP_FILE_NAME_PREFIX)
	defer archive.RemoveTemporaryFiles(archive.RECEIVE_TEMP_FILE_NAME_PREFIX)

	t, err := ticket.Parse(ticketText)
	if err != nil {
		return err
	}

	lgr := logger.New()
	defer func() { _ = lgr.Sync() }()

	opts := []engine.Option{engine.WithLogger(lgr)}
	if viper.GetBool("prompt_overwrite_files") {
		opts = append(opts, engine.WithOverwritePrompt(promptOverwrite))
	}
	eng := engine.New(opts...)
	defer eng.Close()

	events := make(chan progress.Event, progress.ChannelCap)
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		var lastPercent int
		progress.Relay(events, func(ratio float64, known bool) {
			if !known {
				return
			}
			if percent := int(ratio * 100); percent >= lastPercent+10 || percent == 100 {
				lastPercent = percent
				fmt.Fprintf(cmd.OutOrStdout(), "  %3d%%\n", percent)
			}
		})
	}()

	dest := viper.GetString("download_dir")
	fetchErr := eng.Fetch(cmd.Context(), t, dest, events)
	close(events)
	<-relayDone
	if fetchErr != nil {
		return fetchErr
	}

	fmt.Printf("Received payload (%s) into %q\n", tui.ByteCountSI(t.Size), dest)
	return nil
}

func promptOverwrite(name string) (bool, error) {
	prompt := confirmation.New(fmt.Sprintf("Overwrite file '%s'?", name), confirmation.Yes)
	prompt.Template = confirmation.TemplateYN
	prompt.ResultTemplate = confirmation.ResultTemplateYN
	return prompt.RunPrompt()
}
