// Command monocored wires the store, graph resolver, and pack handler
// into a runnable server process. The network transport that carries
// requests to transfer.Handler is an external collaborator and is out of
// scope here: serve starts the store and leaves wiring a listener to the
// embedding application.
package main

import (
	"fmt"
	"os"

	"github.com/abstractgit/monocore/config"
	"github.com/abstractgit/monocore/internal/env"
	"github.com/abstractgit/monocore/store/boltstore"
	"github.com/abstractgit/monocore/transfer"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "monocored",
		Short:         "monorepo pack-transfer server",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.AddCommand(newInitStoreCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

func newLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}

func newInitStoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init-store",
		Short: "create an empty store database at the configured path",
	}

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg := config.NewConfig(env.NewFromOs())
		log := newLogger()

		s, err := boltstore.Open(cfg.StorePath)
		if err != nil {
			return fmt.Errorf("could not initialize store at %s: %w", cfg.StorePath, err)
		}
		defer s.Close()

		log.Info().Str("path", cfg.StorePath).Msg("store initialized")
		return nil
	}

	return cmd
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "open the store and build the pack handler ready to dispatch push/fetch",
	}

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg := config.NewConfig(env.NewFromOs())
		log := newLogger()

		s, err := boltstore.Open(cfg.StorePath)
		if err != nil {
			return fmt.Errorf("could not open store at %s: %w", cfg.StorePath, err)
		}
		defer s.Close()

		handler := transfer.NewHandler(s, cfg, log)

		log.Info().
			Str("store", cfg.StorePath).
			Str("addr", cfg.ListenAddr).
			Int("flush_threshold", handler.Threshold).
			Msg("pack handler ready; bind a transport to dispatch Push/Fetch")
		return nil
	}

	return cmd
}
