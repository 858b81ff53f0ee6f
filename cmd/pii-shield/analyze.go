package main

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/raaihank/pii-shield/internal/actions"
	"github.com/raaihank/pii-shield/internal/blob"
	"github.com/raaihank/pii-shield/internal/intake"
	"github.com/raaihank/pii-shield/internal/logger"
	"github.com/raaihank/pii-shield/internal/page"
	"github.com/raaihank/pii-shield/internal/report"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewAnalyzeCmd creates the analyze command.
func NewAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <image>...",
		Short: "Detect PII in images",
		Long: `Send each image to the backend for OCR and PII detection and print
the detected text regions. Images are analyzed concurrently.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			concurrency, _ := cmd.Flags().GetInt("concurrency")
			return runAnalyze(cmd, args, outputFormat(cmd), concurrency)
		},
	}
	addFormatFlags(cmd)
	cmd.Flags().Int("concurrency", 4, "Maximum number of images analyzed at once")
	return cmd
}

// NewMaskCmd creates the mask command.
func NewMaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mask <image>",
		Short: "Mask PII in an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")
			return runMask(cmd, args[0], output, outputFormat(cmd))
		},
	}
	addFormatFlags(cmd)
	cmd.Flags().StringP("output", "o", page.DownloadName, "Where to write the masked image")
	return cmd
}

func addFormatFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("markdown", false, "Print a Markdown report")
	cmd.Flags().Bool("json", false, "Print JSON")
	cmd.MarkFlagsMutuallyExclusive("markdown", "json")
}

func outputFormat(cmd *cobra.Command) report.Format {
	if md, _ := cmd.Flags().GetBool("markdown"); md {
		return report.FormatMarkdown
	}
	if js, _ := cmd.Flags().GetBool("json"); js {
		return report.FormatJSON
	}
	return report.FormatText
}

// runner drives one page controller per image, the same way the browser does
type runner struct {
	svc    actions.Service
	blobs  *blob.MemoryStore
	policy *intake.Policy
	logger *logger.Logger
}

func newRunner(cmd *cobra.Command) (*runner, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cmd, cfg, true)
	if err != nil {
		return nil, err
	}
	client, err := newClient(cfg, log)
	if err != nil {
		return nil, err
	}
	return &runner{
		svc:    client,
		blobs:  blob.NewMemoryStore(0),
		policy: intake.NewPolicy(cfg.Intake.AllowedExtensions),
		logger: log,
	}, nil
}

// run selects path on a fresh page and runs one action to completion
func (r *runner) run(ctx context.Context, path string, action actions.Name) (*page.Controller, page.Snapshot, error) {
	file, err := readImage(path)
	if err != nil {
		return nil, page.Snapshot{}, err
	}

	p := page.New(page.Config{
		SessionID: path,
		Service:   r.svc,
		Blobs:     r.blobs,
		Policy:    r.policy,
		Logger:    r.logger,
	})
	stop := context.AfterFunc(ctx, p.Close)
	defer stop()

	if !p.Offer([]*intake.File{file}, intake.SourcePicker) {
		p.Close()
		return nil, page.Snapshot{}, fmt.Errorf("%s: unsupported file (accepted: %s)", path, r.policy.AcceptAttr())
	}

	start, status := p.Analyze, func(s page.Snapshot) actions.Status { return s.AnalyzeStatus }
	if action == actions.Mask {
		start, status = p.Mask, func(s page.Snapshot) actions.Status { return s.MaskStatus }
	}
	if err := start(); err != nil {
		p.Close()
		return nil, page.Snapshot{}, fmt.Errorf("%s: %w", path, err)
	}
	p.Wait()

	if err := ctx.Err(); err != nil {
		return nil, page.Snapshot{}, err
	}

	snap := p.Snapshot()
	if status(snap) != actions.StatusSuccess {
		p.Close()
		return nil, snap, fmt.Errorf("%s: %s", path, lastToast(p.TakeToasts()))
	}
	return p, snap, nil
}

func lastToast(toasts []actions.Notification) string {
	if len(toasts) == 0 {
		return "operation failed"
	}
	return toasts[len(toasts)-1].Description
}

func readImage(path string) (*intake.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return &intake.File{
		Name:        filepath.Base(path),
		ContentType: intake.ResolveContentType(mime.TypeByExtension(filepath.Ext(path)), data),
		Data:        data,
	}, nil
}

func runAnalyze(cmd *cobra.Command, paths []string, format report.Format, concurrency int) error {
	r, err := newRunner(cmd)
	if err != nil {
		return err
	}
	defer r.logger.Sync()

	if concurrency <= 0 {
		concurrency = 1
	}

	results := make([]report.Analysis, len(paths))
	errs := make([]error, len(paths))

	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(concurrency)
	for i, path := range paths {
		g.Go(func() error {
			p, snap, err := r.run(ctx, path, actions.Analyze)
			if err != nil {
				// One failed image does not stop the others
				errs[i] = err
				return nil
			}
			defer p.Close()
			results[i] = report.Analysis{File: path, Result: snap.Analysis}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for i, a := range results {
		if errs[i] != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), errs[i])
			continue
		}
		if err := report.WriteAnalysis(out, format, a); err != nil {
			return err
		}
	}
	return errors.Join(errs...)
}

func runMask(cmd *cobra.Command, path, output string, format report.Format) error {
	r, err := newRunner(cmd)
	if err != nil {
		return err
	}
	defer r.logger.Sync()

	p, snap, err := r.run(cmd.Context(), path, actions.Mask)
	if err != nil {
		return err
	}
	defer p.Close()

	img, err := r.blobs.Get(cmd.Context(), snap.Masked.BlobID)
	if err != nil {
		return fmt.Errorf("failed to load masked image: %w", err)
	}
	if err := os.WriteFile(output, img.Data, 0o644); err != nil {
		return fmt.Errorf("failed to write masked image: %w", err)
	}

	return report.WriteMasking(cmd.OutOrStdout(), format, report.Masking{
		File:     path,
		Output:   output,
		PIICount: snap.Masked.PIICount,
		Bytes:    len(img.Data),
	})
}
