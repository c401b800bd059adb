// Command sweep runs the circulation sweep outside the API process.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"libraryapi/internal/app"
	"libraryapi/internal/circulation"
	"libraryapi/internal/config"
	"libraryapi/internal/platform/logging"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	config.LoadEnvFiles()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCLI().RunContext(ctx, os.Args); err != nil {
		logrus.WithError(err).Fatal("sweep failed")
	}
}

func newCLI() *cli.App {
	return &cli.App{
		Name:  "sweep",
		Usage: "expire lapsed reservations and mark late loans overdue",
		Commands: []*cli.Command{
			{
				Name:  "once",
				Usage: "run a single sweep pass and print the report",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Usage: "max reservations and max loans to touch", Value: circulation.DefaultSweepLimit},
					&cli.BoolFlag{Name: "dry-run", Usage: "only count candidates"},
				},
				Action: withApp(func(c *cli.Context, a *app.App, _ config.Config) error {
					report := a.Sweeper.RunSweepWith(c.Context, a.Circulation.Now(), circulation.SweepOptions{
						Limit:  c.Int("limit"),
						DryRun: c.Bool("dry-run"),
					})
					out, err := jsoniter.MarshalIndent(report, "", "  ")
					if err != nil {
						return err
					}
					_, err = fmt.Fprintln(c.App.Writer, string(out))
					return err
				}),
			},
			{
				Name:  "run",
				Usage: "sweep on an interval until interrupted",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "interval", Usage: "time between passes, defaults to SWEEP_INTERVAL"},
				},
				Action: withApp(func(c *cli.Context, a *app.App, cfg config.Config) error {
					interval := cfg.SweepInterval
					if c.IsSet("interval") {
						interval = c.Duration("interval")
					}
					return a.Sweeper.Run(c.Context, interval)
				}),
			},
			{
				Name:  "sync-index",
				Usage: "rebuild the Redis due index from open loans",
				Action: withApp(func(c *cli.Context, a *app.App, _ config.Config) error {
					if a.Index == nil {
						return errors.New("REDIS_ADDR is not set or Redis is unreachable")
					}
					n, err := a.Sweeper.SyncDueIndex(c.Context)
					if err != nil {
						return err
					}
					_, err = fmt.Fprintf(c.App.Writer, "synced %d loans\n", n)
					return err
				}),
			},
			{
				Name:  "purge-tokens",
				Usage: "drop revoked tokens that have expired",
				Action: withApp(func(c *cli.Context, a *app.App, _ config.Config) error {
					n, err := a.Users.PurgeRevoked(c.Context, a.Circulation.Now())
					if err != nil {
						return err
					}
					_, err = fmt.Fprintf(c.App.Writer, "purged %d tokens\n", n)
					return err
				}),
			},
		},
	}
}

type action func(c *cli.Context, a *app.App, cfg config.Config) error

// withApp loads configuration and assembles the app before running fn.
func withApp(fn action) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			return err
		}
		a, err := app.New(c.Context, cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(c, a, cfg)
	}
}
