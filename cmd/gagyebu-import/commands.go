package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"gagyebu/internal/core"
	"gagyebu/internal/export"
	"gagyebu/internal/services"
)

func readStatement(path string) ([]byte, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read statement: %w", err)
	}
	return data, filepath.Base(path), nil
}

func newPreviewCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "preview FILE",
		Short: "Show headers, sample rows and the suggested column mapping",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, filename, err := readStatement(args[0])
			if err != nil {
				return err
			}
			result, err := a.svc.Preview(cmd.Context(), data, filename)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}
}

func parseMapping(raw string) (core.ColumnMapping, error) {
	var m core.ColumnMapping
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		if errors.Is(err, core.ErrInvalidMapping) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidMapping, err)
	}
	return m, nil
}

func newCommitCmd(a *app) *cobra.Command {
	var (
		mappingJSON string
		suggested   bool
		account     string
	)

	cmd := &cobra.Command{
		Use:   "commit FILE",
		Short: "Store the statement's new transactions",
		Long: `Normalizes the statement with the given column mapping and stores every
transaction that does not repeat one already stored for the user.
Use --suggested to accept the mapping that preview proposes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, filename, err := readStatement(args[0])
			if err != nil {
				return err
			}

			req := services.CommitRequest{
				Data:        data,
				Filename:    filename,
				UserID:      a.userID,
				AccountName: account,
			}

			var result services.CommitResult
			if suggested {
				result, err = a.svc.CommitSuggested(cmd.Context(), req)
			} else {
				if req.Mapping, err = parseMapping(mappingJSON); err != nil {
					return err
				}
				result, err = a.svc.Commit(cmd.Context(), req)
			}
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVarP(&mappingJSON, "mapping", "m", "", `column mapping as JSON, e.g. {"date":"거래일자","amount":"이용금액"}`)
	cmd.Flags().BoolVar(&suggested, "suggested", false, "use the suggested mapping")
	cmd.Flags().StringVarP(&account, "account", "a", "", "account name (inferred from the file when empty)")
	cmd.MarkFlagsMutuallyExclusive("mapping", "suggested")
	cmd.MarkFlagsOneRequired("mapping", "suggested")
	return cmd
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the user's imports, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := a.svc.ListImports(cmd.Context(), a.userID)
			if err != nil {
				return err
			}
			if files == nil {
				files = []core.ImportFile{}
			}
			return writeJSON(cmd.OutOrStdout(), files)
		},
	}
}

func newExportCmd(a *app) *cobra.Command {
	var (
		format string
		out    string
	)

	cmd := &cobra.Command{
		Use:   "export IMPORT_ID",
		Short: "Write the transactions of one import to an xlsx or csv file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			doc, err := a.svc.ExportImport(cmd.Context(), a.userID, strings.TrimSpace(args[0]), f)
			if err != nil {
				return err
			}

			path := out
			if path == "" {
				path = doc.Filename
			}
			if err := os.WriteFile(path, doc.Body, 0o644); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			a.logger.Info("Export written", "path", path, "bytes", len(doc.Body))
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "xlsx", "export format: xlsx or csv")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output path (defaults to the generated file name)")
	return cmd
}
