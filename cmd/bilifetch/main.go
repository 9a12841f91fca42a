package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/bilifetch/bilifetch/bilibili"
	"github.com/bilifetch/bilifetch/credstore"
	"github.com/bilifetch/bilifetch/download"
	"github.com/bilifetch/bilifetch/history"
	"github.com/bilifetch/bilifetch/internal/session"
	"github.com/bilifetch/bilifetch/mux"
)

const appName = "bilifetch"

type app struct {
	config  *appConfig
	store   *credstore.Store
	history *history.Store
	session *session.Session
	bar     *progressbar.ProgressBar
}

func newApp(mutate func(*appConfig)) (*app, error) {
	config, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if mutate != nil {
		mutate(config)
	}

	store, err := credstore.Open(config.credentialsPath())
	if err != nil {
		return nil, err
	}
	hist, err := history.Open(config.historyPath())
	if err != nil {
		store.Close()
		return nil, err
	}

	a := &app{config: config, store: store, history: hist}

	dlConfig := download.DefaultConfig
	dlConfig.Concurrency = config.Concurrency
	dlConfig.ProgressFunc = a.onProgress

	a.session, err = session.New(
		session.Config{OutputDir: config.OutputDir},
		bilibili.New(bilibili.DefaultConfig),
		store,
		dlConfig,
		mux.New(config.MuxerPath),
		a.onHistory,
	)
	if err != nil {
		store.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) Close() {
	a.store.Close()
}

func (a *app) onProgress(downloaded, expected int64) {
	if a.bar == nil {
		return
	}
	a.bar.ChangeMax64(expected)
	_ = a.bar.Set64(downloaded)
}

func (a *app) onHistory(rec session.HistoryRecord) error {
	return a.history.Add(&history.Record{
		VideoID:      rec.VideoID,
		Part:         rec.Part,
		Title:        rec.Title,
		Quality:      rec.Quality,
		AudioQuality: rec.AudioQuality,
		OutputPath:   rec.OutputPath,
		Status:       rec.Status,
		Error:        rec.Error,
	})
}

func main() {
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logger, err := config.Build()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logger.Sync()
	zap.RedirectStdLog(logger)
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cliApp := &cli.App{
		Name:  appName,
		Usage: "download videos from bilibili",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "authenticate by scanning a QR code with the mobile app",
				Action: func(c *cli.Context) error {
					return withApp(nil, func(a *app) error { return a.login(ctx) })
				},
			},
			{
				Name:      "import-cookie",
				Usage:     "authenticate from a browser cookie string",
				ArgsUsage: "COOKIES",
				Action: func(c *cli.Context) error {
					raw := strings.Join(c.Args().Slice(), "; ")
					return withApp(nil, func(a *app) error { return a.importCookie(ctx, raw) })
				},
			},
			{
				Name:  "status",
				Usage: "show authentication state and entitlement tier",
				Action: func(c *cli.Context) error {
					return withApp(nil, func(a *app) error { return a.status(ctx) })
				},
			},
			{
				Name:  "logout",
				Usage: "discard stored credentials",
				Action: func(c *cli.Context) error {
					return withApp(nil, func(a *app) error { return a.session.Logout() })
				},
			},
			{
				Name:      "download",
				Usage:     "download one or more videos",
				ArgsUsage: "IDENTIFIER...",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "quality",
						Aliases: []string{"q"},
						Usage:   "exact quality label, e.g. 1080p (default: best available)",
					},
					&cli.IntSliceFlag{
						Name:    "parts",
						Aliases: []string{"p"},
						Usage:   "1-based part numbers (default: all parts)",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "save downloaded videos to `DIR`",
					},
					&cli.Int64Flag{
						Name:  "concurrency",
						Usage: "max simultaneous part downloads",
					},
				},
				Action: func(c *cli.Context) error {
					if c.NArg() == 0 {
						return cli.Exit("at least one identifier is required", 1)
					}
					mutate := func(cfg *appConfig) {
						if c.IsSet("concurrency") {
							cfg.Concurrency = c.Int64("concurrency")
						}
					}
					return withApp(mutate, func(a *app) error {
						for _, id := range c.Args().Slice() {
							req := session.DownloadRequest{
								Identifier: id,
								Quality:    c.String("quality"),
								Parts:      c.IntSlice("parts"),
								OutputDir:  c.String("output"),
							}
							if err := a.downloadOne(ctx, req); err != nil {
								return err
							}
						}
						return nil
					})
				},
			},
			{
				Name:  "history",
				Usage: "show recent downloads",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 20},
				},
				Action: func(c *cli.Context) error {
					return withApp(nil, func(a *app) error { return a.showHistory(c.Int("limit")) })
				},
			},
		},
		HideHelpCommand: true,
	}

	if err := cliApp.Run(os.Args); err != nil {
		logger.Fatal(err.Error())
	}
}

// withApp builds the application (optionally adjusting the loaded config
// first) and tears it down after the action runs.
func withApp(mutate func(*appConfig), f func(a *app) error) error {
	a, err := newApp(mutate)
	if err != nil {
		return err
	}
	defer a.Close()
	return f(a)
}

func (a *app) login(ctx context.Context) error {
	challenge, err := a.session.BeginLogin(ctx)
	if err != nil {
		return err
	}
	fmt.Println("Scan this link as a QR code with the bilibili mobile app:")
	fmt.Println()
	fmt.Printf("  %s\n", challenge.ScannableContent)
	fmt.Println()
	fmt.Println("Waiting for confirmation...")
	if err := a.session.CompleteLogin(ctx, challenge); err != nil {
		return err
	}
	return a.status(ctx)
}

func (a *app) importCookie(ctx context.Context, raw string) error {
	if raw == "" {
		return cli.Exit("a cookie string is required", 1)
	}
	if err := a.session.ImportCookie(ctx, raw); err != nil {
		return err
	}
	return a.status(ctx)
}

func (a *app) status(ctx context.Context) error {
	state := a.session.CheckStatus()
	fmt.Printf("State: %s\n", state)
	info, err := a.session.Verify(ctx)
	if err != nil {
		fmt.Printf("Verification failed: %v\n", err)
		fmt.Printf("State: %s\n", a.session.CheckStatus())
		return nil
	}
	if info != nil {
		fmt.Printf("User:  %s (%s)\n", info.Name, info.UserID)
		fmt.Printf("Tier:  %s\n", info.Tier)
	}
	return nil
}

func (a *app) downloadOne(ctx context.Context, req session.DownloadRequest) error {
	a.bar = progressbar.DefaultBytes(-1, req.Identifier)
	defer func() {
		_ = a.bar.Finish()
		a.bar = nil
		fmt.Println()
	}()

	results, err := a.session.Download(ctx, req)
	for _, res := range results {
		if res.Err != nil {
			fmt.Printf("P%d: failed after %d attempts: %v\n", res.Part.Index, res.Attempts, res.Err)
		} else {
			fmt.Printf("P%d: %s [%s / %s]\n",
				res.Part.Index, res.OutputPath, res.Pair.Video.QualityLabel, res.Pair.Audio.QualityLabel)
		}
	}
	return err
}

func (a *app) showHistory(limit int) error {
	records, err := a.history.Recent(limit)
	if err != nil {
		return err
	}
	for _, rec := range records {
		line := fmt.Sprintf("%s  %s P%d  %-9s  %s",
			rec.CreatedAt.Format(time.RFC3339), rec.VideoID, rec.Part, rec.Status, rec.OutputPath)
		if rec.Error != "" {
			line += "  (" + rec.Error + ")"
		}
		fmt.Println(line)
	}
	return nil
}
