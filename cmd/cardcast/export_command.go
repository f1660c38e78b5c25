package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"cardcast/internal/api"
	"cardcast/internal/assets"
	"cardcast/internal/blobstore"
	"cardcast/internal/config"
	"cardcast/internal/exports"
	"cardcast/internal/exportsvc"
	"cardcast/internal/fileutil"
)

type exportFlags struct {
	spec   exportsvc.Spec
	output string
	remote bool
	json   bool
}

func newExportCommand(ctx *commandContext) *cobra.Command {
	var flags exportFlags

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Record a card to a downloadable video",
		Long: `Record a card: the scene image is drawn every frame, the overlay
(an image, GIF or video) is blended over it, and the result is encoded for
the configured duration. References may be file paths, http(s) URLs, data
URIs or blob:cardcast/ URLs of earlier exports.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			var record api.Export
			if flags.remote {
				record, err = runRemoteExport(cmd.Context(), ctx, flags)
			} else {
				record, err = runLocalExport(cmd.Context(), ctx, cfg, flags)
			}
			if record.ID == 0 {
				return err
			}
			if flags.json {
				if jerr := writeJSON(cmd, record); jerr != nil {
					return jerr
				}
			} else {
				printExport(cmd.OutOrStdout(), record)
			}
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.spec.Title, "title", "", "Card title, used for the download file name")
	f.StringVar(&flags.spec.Scene, "scene", "", "Static scene image reference")
	f.StringVar(&flags.spec.Overlay, "overlay", "", "Looping overlay reference (image, GIF or video)")
	f.StringVar(&flags.spec.Soundtrack, "soundtrack", "", "Optional audio track reference")
	f.StringVar(&flags.spec.Blend, "blend", "", "Overlay blend mode (default from config, normally screen)")
	f.StringVar(&flags.spec.Container, "container", "", "Output container: webm or mp4")
	f.Float64Var(&flags.spec.DurationSeconds, "duration", 0, "Recording length in seconds")
	f.IntVar(&flags.spec.FPS, "fps", 0, "Frames per second")
	f.IntVar(&flags.spec.Width, "width", 0, "Output width in pixels")
	f.IntVar(&flags.spec.Height, "height", 0, "Output height in pixels")
	f.StringVarP(&flags.output, "output", "o", "", "Also write the artifact to this path (a directory keeps the download name)")
	f.BoolVar(&flags.remote, "remote", false, "Record on the running cardcast server instead of in-process")
	f.BoolVar(&flags.json, "json", false, "Output the export record as JSON")
	_ = cmd.MarkFlagRequired("scene")
	return cmd
}

func runLocalExport(cmdCtx context.Context, ctx *commandContext, cfg *config.Config, flags exportFlags) (api.Export, error) {
	logger, err := ctx.ensureLogger()
	if err != nil {
		return api.Export{}, err
	}
	history, err := exports.Open(cfg)
	if err != nil {
		return api.Export{}, err
	}
	defer history.Close()
	blobs, err := blobstore.New(cfg.Paths.BlobDir)
	if err != nil {
		return api.Export{}, err
	}

	var opts []exportsvc.Option
	if ctx.newRecorder != nil {
		recorder, err := ctx.newRecorder(blobs)
		if err != nil {
			return api.Export{}, err
		}
		opts = append(opts, exportsvc.WithRecorder(recorder))
	}
	svc, err := exportsvc.New(cfg, history, blobs, logger, opts...)
	if err != nil {
		return api.Export{}, err
	}
	defer svc.Close()

	outcome, err := svc.Export(cmdCtx, flags.spec)
	if outcome.Export == nil {
		return api.Export{}, err
	}
	record := api.FromRecord(outcome.Export, "")
	if err != nil {
		return record, err
	}
	if flags.output != "" {
		blob, rerr := blobs.Stat(outcome.Export.BlobURL)
		if rerr != nil {
			return record, rerr
		}
		target := outputTarget(flags.output, blob.FileName)
		if _, cerr := fileutil.CopyVerified(blob.Path, target); cerr != nil {
			return record, fmt.Errorf("copy artifact: %w", cerr)
		}
	}
	return record, nil
}

func runRemoteExport(cmdCtx context.Context, ctx *commandContext, flags exportFlags) (api.Export, error) {
	client, err := ctx.client()
	if err != nil {
		return api.Export{}, err
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		return api.Export{}, err
	}
	resolver := assets.NewResolver(logger)
	spec := flags.spec
	for _, ref := range []*string{&spec.Scene, &spec.Overlay, &spec.Soundtrack} {
		if *ref, err = inlineRef(cmdCtx, resolver, *ref); err != nil {
			return api.Export{}, err
		}
	}
	resp, err := client.StartExport(cmdCtx, api.StartExportRequest{
		Title:           spec.Title,
		Scene:           spec.Scene,
		Overlay:         spec.Overlay,
		Soundtrack:      spec.Soundtrack,
		Blend:           spec.Blend,
		Container:       spec.Container,
		DurationSeconds: spec.DurationSeconds,
		FPS:             spec.FPS,
		Width:           spec.Width,
		Height:          spec.Height,
		Wait:            true,
	})
	if err != nil {
		return api.Export{}, err
	}
	record := resp.Export
	if record.Status != string(exports.StatusDone) {
		return record, errors.New(strings.TrimSpace("export failed: " + record.ErrorMessage))
	}
	if flags.output != "" && record.DownloadURL != "" {
		name := blobstore.DownloadName(record.Title, blobstore.ExtensionFor(record.MIMEType))
		if err := writeArtifact(flags.output, name, func(w io.Writer) error {
			_, err := client.Download(cmdCtx, record.DownloadURL, w)
			return err
		}); err != nil {
			return record, err
		}
	}
	return record, nil
}

// inlineRef turns a local file reference into a data URI. The server only
// reads local files under its configured asset root.
func inlineRef(ctx context.Context, resolver *assets.Resolver, ref string) (string, error) {
	if !assets.IsLocalRef(ref) {
		return ref, nil
	}
	asset, err := resolver.Fetch(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("load %s: %w", ref, err)
	}
	return assets.DataURI(asset.MIMEType, asset.Data), nil
}

// outputTarget places the artifact inside target when it names a directory.
func outputTarget(target, fileName string) string {
	if info, err := os.Stat(target); err == nil && info.IsDir() {
		return filepath.Join(target, fileName)
	}
	return target
}

func writeArtifact(target, fileName string, write func(io.Writer) error) error {
	target = outputTarget(target, fileName)
	file, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := write(file); err != nil {
		_ = file.Close()
		_ = os.Remove(target)
		return err
	}
	return file.Close()
}

func printExport(out io.Writer, rec api.Export) {
	fmt.Fprintf(out, "Export #%d %s\n", rec.ID, rec.Title)
	fmt.Fprintf(out, "  Status:   %s\n", rec.Status)
	if rec.ErrorMessage != "" {
		fmt.Fprintf(out, "  Error:    %s\n", rec.ErrorMessage)
	}
	if rec.BlobURL != "" {
		fmt.Fprintf(out, "  Blob:     %s\n", rec.BlobURL)
		fmt.Fprintf(out, "  Format:   %s\n", rec.MIMEType)
		fmt.Fprintf(out, "  Size:     %s\n", humanize.IBytes(uint64(rec.SizeBytes)))
		fmt.Fprintf(out, "  Frames:   %d (%.2fs)\n", rec.Frames, rec.DurationSeconds)
	}
	if rec.DownloadURL != "" {
		fmt.Fprintf(out, "  Download: %s\n", rec.DownloadURL)
	}
}
