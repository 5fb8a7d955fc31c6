package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go-playbooks/internal/config"
	"go-playbooks/internal/db"
	"go-playbooks/internal/logger"
	"go-playbooks/internal/shortid"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	envFile string
	addr    string

	cfg *config.Config
	log zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "server",
	Short:         "Playbook authoring, collaboration and marketplace API",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "shortid" {
			return nil
		}
		var files []string
		if envFile != "" {
			files = append(files, envFile)
		}
		var err error
		cfg, err = config.Load(files...)
		if err != nil {
			return err
		}
		if addr != "" {
			cfg.Addr = addr
		}
		log = logger.New(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and websocket server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := db.NewDatabase(cfg.DatabaseDSN)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer database.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()
		if err := database.AutoMigrate(ctx); err != nil {
			return err
		}
		log.Info().Msg("database schema up to date")
		return nil
	},
}

var shortidCmd = &cobra.Command{
	Use:   "shortid <uuid|short-id>",
	Short: "Convert between a playbook UUID and its short form",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := shortid.EnsureUUID(args[0])
		if err != nil {
			return err
		}
		if shortid.IsUUID(args[0]) {
			fmt.Fprintln(cmd.OutOrStdout(), shortid.ToShortID(id))
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "env file to load instead of ./.env")
	serveCmd.Flags().StringVar(&addr, "addr", "", "http service address (overrides ADDR)")
	rootCmd.AddCommand(serveCmd, migrateCmd, shortidCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
