package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"gagyebu/internal/cli"
	"gagyebu/internal/config"
	"gagyebu/internal/core"
	applog "gagyebu/internal/log"
	"gagyebu/internal/services"
	"gagyebu/internal/storage"
)

// app holds what the subcommands share once the root command has run its
// pre-run hook.
type app struct {
	logger *applog.Logger
	cfg    *config.Config
	repo   *storage.SQLiteRepository
	svc    *services.ImportService
	closer io.Closer

	userID string
}

func (a *app) init(cmd *cobra.Command) error {
	cli.LoadEnvFile()

	logCfg := applog.ConfigFromEnv(applog.ComponentCLI)
	logCfg.Output = cmd.ErrOrStderr()
	a.logger = applog.New(logCfg)
	applog.SetDefault(a.logger)

	cfg, err := cli.LoadConfig()
	if err != nil {
		return err
	}
	a.cfg = cfg

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	a.repo = repo

	var publisher services.EventPublisher
	if client := cli.InitPublisher(a.logger, cfg); client != nil {
		a.closer = client
		publisher = client
	}

	a.svc = services.NewImportService(repo, publisher, services.ImportConfig{
		PreviewRows: cfg.PreviewRows,
		CreditType:  core.TxType(cfg.NegativeAmountType),
	})
	if a.userID == "" {
		a.userID = cfg.DefaultUserID
	}
	return nil
}

func (a *app) close() {
	if a.closer != nil {
		a.closer.Close()
	}
	if a.repo != nil {
		a.repo.Close()
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "gagyebu-import",
		Short: "Import Korean bank and card statements into the household ledger.",
		Long: `gagyebu-import reads xls, xlsx and csv statements exported by Korean banks
and card issuers, suggests a column mapping, and commits the transactions
that are not already stored for the user.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}
	root.PersistentFlags().StringVarP(&a.userID, "user", "u", "", "owner of the imported data (defaults to DEFAULT_USER_ID)")

	root.AddCommand(
		newPreviewCmd(a),
		newCommitCmd(a),
		newListCmd(a),
		newExportCmd(a),
	)
	return root
}

// run executes the command line and releases the database afterwards.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	a := &app{}
	defer a.close()

	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
