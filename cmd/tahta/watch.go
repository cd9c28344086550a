package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/okultahta/tahta-server/internal/discovery"
	"github.com/okultahta/tahta-server/internal/realtime/wsclient"
	"github.com/okultahta/tahta-server/internal/render"
	"github.com/okultahta/tahta-server/internal/whiteboard"
)

type watchOptions struct {
	server   string
	token    string
	discover bool
	browse   time.Duration
	outDir   string
	width    int
	height   int
}

func newWatchCmd(root *rootOptions) *cobra.Command {
	opts := &watchOptions{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow your drawing from a server and write a PNG after every change",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			if opts.width <= 0 {
				opts.width = cfg.Canvas.Width
			}
			if opts.height <= 0 {
				opts.height = cfg.Canvas.Height
			}
			return runWatch(cmd.Context(), opts, logger)
		},
	}
	cmd.Flags().StringVar(&opts.server, "server", "http://localhost:8080", "server base URL")
	cmd.Flags().StringVar(&opts.token, "token", os.Getenv("TAHTA_TOKEN"), "JWT issued by /api/login")
	cmd.Flags().BoolVar(&opts.discover, "discover", false, "find the server on the local network")
	cmd.Flags().DurationVar(&opts.browse, "browse-timeout", 3*time.Second, "how long to browse with --discover")
	cmd.Flags().StringVar(&opts.outDir, "out-dir", "frames", "directory for PNG frames")
	cmd.Flags().IntVar(&opts.width, "width", 0, "surface width (default canvas.width)")
	cmd.Flags().IntVar(&opts.height, "height", 0, "surface height (default canvas.height)")
	return cmd
}

func runWatch(ctx context.Context, opts *watchOptions, logger *zerolog.Logger) error {
	if opts.token == "" {
		return errors.New("--token is required")
	}

	base := opts.server
	if opts.discover {
		found, err := discovery.Browse(ctx, opts.browse)
		if err != nil {
			return err
		}
		if len(found) == 0 {
			return errors.New("no tahta server found on the local network")
		}
		base = found[0].HTTPURL()
		logger.Info().Str("instance", found[0].Instance).Str("addr", found[0].Addr).Msg("server discovered")
	}
	httpBase, wsURL, err := endpoints(base)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", opts.outDir, err)
	}

	sessions := wsclient.NewStore(httpBase, opts.token)
	me, err := sessions.Me(ctx)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}

	conn, err := wsclient.Dial(ctx, wsURL, opts.token, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	renderer, err := render.New(opts.width, opts.height)
	if err != nil {
		return err
	}
	defer renderer.Close()

	frame := 0
	ctrl := whiteboard.New(whiteboard.Config{
		UserID:   me.ID,
		Username: me.Username,
		Store:    sessions,
		Channel:  conn,
		Renderer: renderer,
		Logger:   logger,
		OnChange: func(st whiteboard.State) {
			frame++
			path := filepath.Join(opts.outDir, fmt.Sprintf("frame-%05d.png", frame))
			if err := writeFrame(renderer, path); err != nil {
				logger.Warn().Err(err).Str("path", path).Msg("write frame")
				return
			}
			logger.Info().
				Str("path", path).
				Int("strokes", len(st.Strokes)).
				Bool("multi_user", st.MultiUser).
				Msg("frame written")
		},
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-conn.Done():
			logger.Warn().Msg("connection closed by server")
			cancel()
		case <-runCtx.Done():
		}
	}()

	err = ctrl.Run(runCtx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func writeFrame(r *render.Renderer, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	return errors.Join(r.EncodePNG(f), f.Close())
}

// endpoints derives the REST base URL and the /ws endpoint from base, which
// may use any of the http, https, ws or wss schemes.
func endpoints(base string) (httpBase, wsURL string, err error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", "", fmt.Errorf("parse server url: %w", err)
	}
	h, w := *u, *u
	switch u.Scheme {
	case "http", "ws":
		h.Scheme, w.Scheme = "http", "ws"
	case "https", "wss":
		h.Scheme, w.Scheme = "https", "wss"
	default:
		return "", "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	h.Path = strings.TrimSuffix(u.Path, "/ws")
	w.Path = h.Path + "/ws"
	return h.String(), w.String(), nil
}
