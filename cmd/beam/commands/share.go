package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/beamspace/beam/internal/archive"
	"github.com/beamspace/beam/internal/engine"
	"github.com/beamspace/beam/internal/logger"
	"github.com/beamspace/beam/internal/state"
	"github.com/beamspace/beam/internal/worker"
)

// ------------------------------------------------------- Share -------------------------------------------------------

func Share(version string) *cobra.Command {
	shareCmd := &cobra.Command{
		Use:   "share path",
		Short: "Share a file or directory",
		Long:  "The share command packs the given path into a payload and prints a ticket that redeems it. The provider keeps serving until interrupted.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logFile, err := setupLoggingFromViper("share")
			if err != nil {
				return err
			}
			if logFile != nil {
				defer logFile.Close()
			}
			if err := handleShareCommand(args[0]); err != nil {
				return fmt.Errorf("running share command: %w", err)
			}
			return nil
		},
	}
	return shareCmd
}

// ------------------------------------------------------ Handlers -----------------------------------------------------

// handleShareCommand shares a path without the interactive interface. It
// prints the ticket on stdout and blocks until interrupted.
func handleShareCommand(path string) error {
	archive.RemoveTemporaryFiles(archive.SEND_TEMP_FILE_NAME_PREFIX)
	defer archive.RemoveTemporaryFiles(archive.SEND_TEMP_FILE_NAME_PREFIX)

	listenAddr, err := listenAddrFromViper()
	if err != nil {
		return err
	}

	lgr := logger.New()
	defer func() { _ = lgr.Sync() }()

	store := state.NewStore()
	eng := engine.New(engine.WithListenAddr(listenAddr), engine.WithLogger(lgr))
	defer eng.Close()

	w := worker.New(store, eng, worker.WithLogger(lgr))
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(context.Background())
	}()
	defer func() {
		w.Stop()
		<-done
	}()

	w.Dispatch(worker.ShareRequest{Path: path})
	snapshot, err := awaitShareOutcome(store)
	if err != nil {
		return err
	}

	fmt.Printf("Providing %q, redeem with:\n\n", path)
	fmt.Printf("  beam get %s\n\n", snapshot.Ticket.String())
	lgr.Info("provider ready", zap.String("path", path), zap.Int64("size", snapshot.Ticket.Size))

	// Keep serving the payload until the user interrupts.
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt
	return nil
}

// awaitShareOutcome polls the store until the share cycle produced either a
// ticket or an error.
func awaitShareOutcome(store *state.Store) (state.Snapshot, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		snapshot := store.Snapshot()
		if snapshot.Err != nil {
			return snapshot, snapshot.Err
		}
		if snapshot.Ticket != nil {
			return snapshot, nil
		}
	}
	return state.Snapshot{}, nil
}
