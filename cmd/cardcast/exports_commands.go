package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"cardcast/internal/api"
	"cardcast/internal/daemonctl"
	"cardcast/internal/exports"
)

func newExportsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exports",
		Short: "Inspect export history",
	}
	cmd.AddCommand(newExportsListCommand(ctx))
	cmd.AddCommand(newExportsShowCommand(ctx))
	return cmd
}

func newExportsListCommand(ctx *commandContext) *cobra.Command {
	var statusFlags []string
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent exports",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses := make([]exports.Status, 0, len(statusFlags))
			for _, value := range statusFlags {
				status, ok := exports.ParseStatus(value)
				if !ok {
					return fmt.Errorf("unknown status %q (want recording, done or error)", value)
				}
				statuses = append(statuses, status)
			}
			records, err := ctx.listExports(cmd.Context(), limit, statuses)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, api.ExportListResponse{Exports: records})
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No exports yet")
				return nil
			}
			fmt.Fprintln(out, renderTable(exportColumns, exportRows(records, time.Now())))
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&statusFlags, "status", "s", nil, "Filter by status (repeatable)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum exports to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newExportsShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid export id %q", args[0])
			}
			record, err := ctx.getExport(cmd.Context(), id)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, record)
			}
			printExport(cmd.OutOrStdout(), record)
			fmt.Fprintf(cmd.OutOrStdout(), "  Scene:    %s\n", record.SceneRef)
			if record.OverlayRef != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "  Overlay:  %s\n", record.OverlayRef)
			}
			if record.SoundtrackRef != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "  Audio:    %s\n", record.SoundtrackRef)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  Created:  %s\n", record.CreatedAt)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

var exportColumns = []column{
	{Header: "ID", Align: alignRight},
	{Header: "Title", MaxWidth: 32},
	{Header: "Status"},
	{Header: "Frames", Align: alignRight},
	{Header: "Size", Align: alignRight},
	{Header: "Created"},
}

func exportRows(records []api.Export, now time.Time) [][]string {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		size, frames := "-", "-"
		if rec.SizeBytes > 0 {
			size = humanize.IBytes(uint64(rec.SizeBytes))
		}
		if rec.Frames > 0 {
			frames = strconv.Itoa(rec.Frames)
		}
		created := rec.CreatedAt
		if ts, err := time.Parse(time.RFC3339, rec.CreatedAt); err == nil {
			created = humanize.RelTime(ts, now, "ago", "from now")
		}
		rows = append(rows, []string{
			strconv.FormatInt(rec.ID, 10),
			rec.Title,
			rec.Status,
			frames,
			size,
			created,
		})
	}
	return rows
}

// listExports asks the running server and falls back to the local database.
func (c *commandContext) listExports(ctx context.Context, limit int, statuses []exports.Status) ([]api.Export, error) {
	client, err := c.client()
	if err != nil {
		return nil, err
	}
	records, err := client.ListExports(ctx, limit, statuses...)
	if err == nil || !daemonctl.IsUnavailable(err) {
		return records, err
	}
	store, err := c.openHistory()
	if err != nil {
		return nil, err
	}
	defer store.Close()
	local, err := store.List(ctx, limit, statuses...)
	if err != nil {
		return nil, err
	}
	return api.FromRecords(local, ""), nil
}

func (c *commandContext) getExport(ctx context.Context, id int64) (api.Export, error) {
	client, err := c.client()
	if err != nil {
		return api.Export{}, err
	}
	record, err := client.GetExport(ctx, id)
	if err == nil || !daemonctl.IsUnavailable(err) {
		return record, err
	}
	store, err := c.openHistory()
	if err != nil {
		return api.Export{}, err
	}
	defer store.Close()
	local, err := store.Get(ctx, id)
	if err != nil {
		return api.Export{}, err
	}
	if local == nil {
		return api.Export{}, errors.New("export " + strconv.FormatInt(id, 10) + " not found")
	}
	return api.FromRecord(local, ""), nil
}

func (c *commandContext) openHistory() (*exports.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return exports.Open(cfg)
}
