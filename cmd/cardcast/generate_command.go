package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"cardcast/internal/assets"
	"cardcast/internal/generate"
)

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var (
		req       generate.Request
		kind      string
		reference string
		output    string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate card artwork from a prompt",
		Long: `Send the master and personalized text to the configured generation
endpoint and save the returned image or video. Without --output the data URI
is printed so it can be passed straight to "cardcast export --scene".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			if req.Kind, err = generate.ParseKind(kind); err != nil {
				return err
			}
			if ref := strings.TrimSpace(reference); ref != "" {
				if strings.HasPrefix(strings.ToLower(ref), "data:") {
					req.ReferenceImage = ref
				} else {
					asset, err := assets.NewResolver(logger).Fetch(cmd.Context(), ref)
					if err != nil {
						return fmt.Errorf("load reference image: %w", err)
					}
					req.ReferenceImage = assets.DataURI(asset.MIMEType, asset.Data)
				}
			}

			client := generate.NewClient(generate.Config{
				BaseURL:        cfg.Generator.BaseURL,
				APIKey:         cfg.Generator.APIKey,
				Model:          cfg.Generator.Model,
				TimeoutSeconds: cfg.Generator.TimeoutSeconds,
			}, generate.WithLogger(logger))
			result, err := client.Generate(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if output == "" {
				fmt.Fprintln(out, result.DataURI)
				return nil
			}
			_, data, err := assets.ParseDataURI(result.DataURI)
			if err != nil {
				return fmt.Errorf("decode generated asset: %w", err)
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			fmt.Fprintf(out, "Wrote %s (%s, %s)\n", output, result.MIMEType, humanize.IBytes(uint64(len(data))))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.MasterText, "master", "", "Master prompt text")
	f.StringVar(&req.PersonalizedText, "personalized", "", "Personalized message text")
	f.StringVar(&reference, "reference", "", "Optional reference image (path, URL or data URI)")
	f.StringVar(&req.AspectRatio, "aspect", "", "Aspect ratio, e.g. 16:9")
	f.Float64Var(&req.Strength, "strength", 0, "Reference image strength")
	f.StringVar(&req.Model, "model", "", "Model override")
	f.StringVar(&kind, "kind", "image", "Asset kind: image or video")
	f.StringVarP(&output, "output", "o", "", "Write the generated asset to this file")
	_ = cmd.MarkFlagRequired("master")
	return cmd
}
