// Command cantatadyn is the daemon entry point: it loads
// configuration, opens the two MPD connections described in spec.md
// §5 (one for the dynamizer loop, one for the HTTP surface), wires the
// rule engine, history buffer, similar-artist cache, status facade and
// control dispatcher together, and runs the dynamizer loop and (in
// --server mode, if httpPort != 0) the HTTP server concurrently. Flag parsing follows
// github.com/urfave/cli (v1), the CLI library pinned in
// other_examples/manifests/leo82309-ipod, the one CLI-based example in
// the retrieval pack.
package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/kungpfui/cantatadyn/internal/config"
	"github.com/kungpfui/cantatadyn/internal/dynamizer"
	"github.com/kungpfui/cantatadyn/internal/history"
	"github.com/kungpfui/cantatadyn/internal/httpapi"
	"github.com/kungpfui/cantatadyn/internal/lastfm"
	"github.com/kungpfui/cantatadyn/internal/logging"
	"github.com/kungpfui/cantatadyn/internal/mpd"
	"github.com/kungpfui/cantatadyn/internal/rules"
	"github.com/kungpfui/cantatadyn/internal/status"
)

func main() {
	app := cli.NewApp()
	app.Name = "cantatadyn"
	app.Usage = "keep an MPD play queue continuously populated from a rule file"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Value: config.DefaultPath,
			Usage: "path to the key=value configuration file",
		},
		cli.BoolFlag{
			Name:  "server",
			Usage: "subscribe to the in-band control channel and run the HTTP surface",
		},
		cli.BoolFlag{
			Name:  "test",
			Usage: "run a single dynamizer pass and exit nonzero on NO_SONGS",
		},
		cli.BoolFlag{
			Name:  "verbose, v",
			Usage: "enable debug-level logging",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("config: %v", err), 1)
	}

	logger, err := logging.New(cfg.LogDir, c.Bool("verbose"))
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("logging: %v", err), 1)
	}
	serverMode := c.Bool("server")

	dynConn, err := mpd.Dial(mpd.Info{Host: cfg.MPDHost, Port: cfg.MPDPort, Password: cfg.MPDPassword}, serverMode)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("mpd: %v", err), 1)
	}
	defer dynConn.Close()

	similar := lastfm.NewCache(cfg.FilesDir, "", "")
	engine := rules.NewEngine(cfg.FilesDir, cfg.ActiveFile, dynConn, similar)
	hist := &history.Buffer{}
	st := status.New()

	loop := dynamizer.NewLoop(dynConn, engine, hist, st, serverMode, cfg.FilesDir, cfg.ActiveFile, dynConn)

	if cfg.HTTPPort != 0 && serverMode {
		httpConn, err := mpd.Dial(mpd.Info{Host: cfg.MPDHost, Port: cfg.MPDPort, Password: cfg.MPDPassword}, false)
		if err != nil {
			logger.WithError(err).Error("mpd: http connection failed")
		} else {
			defer httpConn.Close()
			srv := &httpapi.Server{
				RulesDir:   cfg.FilesDir,
				ActiveLink: cfg.ActiveFile,
				Status:     st,
				Conn:       httpConn,
				Events:     st.Events,
				FaviconDir: filepath.Dir(cfg.ActiveFile),
			}
			r := chi.NewRouter()
			srv.InitRouter(r)
			go func() {
				addr := fmt.Sprintf(":%d", cfg.HTTPPort)
				logger.WithField("addr", addr).Info("httpapi: listening")
				if err := http.ListenAndServe(addr, r); err != nil {
					logger.WithError(err).Error("httpapi: server stopped")
				}
			}()
		}
	}

	if c.Bool("test") {
		loop.SetDynamic(true)
		if err := loop.RunOnce(); err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		if st.Snapshot().State == status.NoSongs {
			return cli.NewExitError("no songs matched the active rules", 1)
		}
		return nil
	}

	loop.SetDynamic(true)
	logger.Info("dynamizer: starting")
	return loop.Run()
}
