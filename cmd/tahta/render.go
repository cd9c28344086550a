package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/okultahta/tahta-server/internal/app"
	"github.com/okultahta/tahta-server/internal/config"
	"github.com/okultahta/tahta-server/internal/export"
)

type renderOptions struct {
	email  string
	out    string
	width  int
	height int
}

func newRenderCmd(root *rootOptions) *cobra.Command {
	opts := &renderOptions{}

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a user's stored drawing to a PNG or PDF file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			if err := runRender(cmd.Context(), cfg, opts); err != nil {
				return err
			}
			logger.Info().Str("out", opts.out).Msg("drawing rendered")
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.email, "user-email", "", "email of the drawing owner")
	cmd.Flags().StringVar(&opts.out, "out", "drawing.png", "output file (.png or .pdf)")
	cmd.Flags().IntVar(&opts.width, "width", 0, "surface width (default canvas.width)")
	cmd.Flags().IntVar(&opts.height, "height", 0, "surface height (default canvas.height)")
	_ = cmd.MarkFlagRequired("user-email")
	return cmd
}

func runRender(ctx context.Context, cfg config.Config, opts *renderOptions) error {
	ext := strings.ToLower(filepath.Ext(opts.out))
	if ext != ".png" && ext != ".pdf" {
		return fmt.Errorf("unsupported output format %q", ext)
	}
	width, height := cfg.Canvas.Width, cfg.Canvas.Height
	if opts.width > 0 {
		width = opts.width
	}
	if opts.height > 0 {
		height = opts.height
	}

	st, err := app.OpenStore(cfg.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	user, err := st.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(opts.email)))
	if err != nil {
		return fmt.Errorf("find user %s: %w", opts.email, err)
	}
	drawing, err := st.GetDrawingByUser(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("find drawing of %s: %w", opts.email, err)
	}

	f, err := os.Create(opts.out)
	if err != nil {
		return fmt.Errorf("create %s: %w", opts.out, err)
	}
	if ext == ".pdf" {
		err = export.PDF(f, drawing.Strokes, width, height, user.Username)
	} else {
		err = export.PNG(f, drawing.Strokes, width, height)
	}
	return errors.Join(err, f.Close())
}
