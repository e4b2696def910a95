package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/Sternrassler/ashby-resumes/internal/config"
	"github.com/Sternrassler/ashby-resumes/internal/server"
	"github.com/Sternrassler/ashby-resumes/pkg/client"
	"github.com/Sternrassler/ashby-resumes/pkg/logging"
	"github.com/Sternrassler/ashby-resumes/pkg/pdfbatch"
	"github.com/Sternrassler/ashby-resumes/pkg/progress"
	"github.com/Sternrassler/ashby-resumes/pkg/ratelimit"
	"github.com/Sternrassler/ashby-resumes/pkg/recruiting"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

// runtime holds the dependencies built for one command invocation.
type runtime struct {
	cfg    *config.Config
	logger zerolog.Logger
	redis  *redis.Client
	svc    *recruiting.Service
}

func (rt *runtime) Close() {
	if rt.redis != nil {
		rt.redis.Close()
	}
}

// loadConfig reads configuration and applies global flag overrides.
func loadConfig(c *cli.Context) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, zerolog.Nop(), cli.Exit(err.Error(), 2)
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("pretty") {
		cfg.Log.Pretty = c.Bool("pretty")
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Log.Level
	logCfg.Pretty = cfg.Log.Pretty
	logCfg.Output = c.App.ErrWriter
	return cfg, logging.Setup(logCfg), nil
}

// setup builds the Ashby client and the recruiting service. The rate limit
// cooldown lives in Redis when a URL is configured and in process otherwise.
func setup(c *cli.Context) (*runtime, error) {
	cfg, logger, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, cli.Exit(err.Error(), 2)
	}

	rt := &runtime{cfg: cfg, logger: logger}

	var store ratelimit.Store
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, cli.Exit(fmt.Sprintf("invalid REDIS_URL: %v", err), 2)
		}
		rt.redis = redis.NewClient(opts)
		if err := rt.redis.Ping(c.Context).Err(); err != nil {
			logger.Warn().Err(err).Msg("Redis unreachable, cooldown lookups will fail open")
		}
		store = ratelimit.NewRedisStore(rt.redis)
	}
	tracker := ratelimit.NewTracker(store, logging.NewLogger("ratelimit"))

	clientCfg := client.DefaultConfig(cfg.Ashby.APIKey)
	clientCfg.BaseURL = cfg.Ashby.BaseURL
	clientCfg.MaxRetries = cfg.Ashby.MaxRetries
	clientCfg.Timeout = cfg.Ashby.Timeout
	clientCfg.UserAgent = "ashby-resumes/" + version
	clientCfg.Cooldown = tracker

	ashby, err := client.New(clientCfg)
	if err != nil {
		rt.Close()
		return nil, cli.Exit(err.Error(), 2)
	}

	svcCfg := recruiting.DefaultConfig()
	svcCfg.Enrich.Workers = cfg.Fanout.Workers
	rt.svc = recruiting.NewService(ashby, svcCfg)
	return rt, nil
}

func writeJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "port", Usage: "Listen port (overrides PORT)"},
		},
		Action: func(c *cli.Context) error {
			rt, err := setup(c)
			if err != nil {
				return err
			}
			defer rt.Close()

			port := rt.cfg.Server.Port
			if c.IsSet("port") {
				port = c.String("port")
			}
			if rt.cfg.Server.Passkey == "" {
				rt.logger.Warn().Msg("APP_PASSKEY not set, /api endpoints are open")
			}

			srv := server.New(rt.svc, pdfbatch.NewAssembler(), rt.redis, server.Config{
				Passkey:        rt.cfg.Server.Passkey,
				MaxUploadBytes: rt.cfg.MaxUploadBytes(),
				Version:        version,
			})

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Run(ctx, ":"+port)
		},
	}
}

func jobsCommand() *cli.Command {
	return &cli.Command{
		Name:  "jobs",
		Usage: "List all jobs",
		Action: func(c *cli.Context) error {
			rt, err := setup(c)
			if err != nil {
				return err
			}
			defer rt.Close()

			jobs, err := rt.svc.ListJobs(c.Context)
			if err != nil {
				return cli.Exit(recruiting.Message(err), 1)
			}
			return writeJSON(c, jobs)
		},
	}
}

func stagesCommand() *cli.Command {
	return &cli.Command{
		Name:  "stages",
		Usage: "List the interview stages of a job",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "job", Usage: "Job ID", Required: true},
		},
		Action: func(c *cli.Context) error {
			rt, err := setup(c)
			if err != nil {
				return err
			}
			defer rt.Close()

			stages, err := rt.svc.ListStages(c.Context, c.String("job"))
			if err != nil {
				return cli.Exit(recruiting.Message(err), 1)
			}
			return writeJSON(c, stages)
		},
	}
}

func candidatesCommand() *cli.Command {
	return &cli.Command{
		Name:  "candidates",
		Usage: "Stream the candidates of a job as JSON lines of progress events",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "job", Usage: "Job ID", Required: true},
			&cli.StringFlag{Name: "stage", Usage: "Only candidates currently in this stage"},
		},
		Action: func(c *cli.Context) error {
			rt, err := setup(c)
			if err != nil {
				return err
			}
			defer rt.Close()

			sink := progress.NewJSONLinesWriter(c.App.Writer)
			if _, err := rt.svc.ListCandidates(c.Context, c.String("job"), c.String("stage"), sink); err != nil {
				return cli.Exit(recruiting.Message(err), 1)
			}
			return nil
		},
	}
}

func downloadCommand() *cli.Command {
	return &cli.Command{
		Name:  "download",
		Usage: "Download one resume by file handle",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "handle", Usage: "Resume file handle", Required: true},
			&cli.StringFlag{Name: "dir", Usage: "Output directory", Value: "."},
		},
		Action: func(c *cli.Context) error {
			rt, err := setup(c)
			if err != nil {
				return err
			}
			defer rt.Close()

			file, err := rt.svc.DownloadFile(c.Context, c.String("handle"))
			if err != nil {
				return cli.Exit(recruiting.Message(err), 1)
			}

			path := filepath.Join(c.String("dir"), filepath.Base(file.Name))
			if err := os.WriteFile(path, file.Data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
			fmt.Fprintln(c.App.Writer, path)
			return nil
		},
	}
}

func bulkCommand() *cli.Command {
	return &cli.Command{
		Name:  "bulk",
		Usage: "Download several resumes into one zip archive",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "handle", Usage: "Resume file handle (repeatable)", Required: true},
			&cli.StringSliceFlag{Name: "name", Usage: "Candidate name for the handle at the same position (repeatable)"},
			&cli.StringFlag{Name: "out", Usage: "Output archive", Value: "candidate_resumes.zip"},
		},
		Action: func(c *cli.Context) error {
			rt, err := setup(c)
			if err != nil {
				return err
			}
			defer rt.Close()

			var buf bytes.Buffer
			result, err := rt.svc.BulkDownload(c.Context, &buf, c.StringSlice("handle"), c.StringSlice("name"))
			if err != nil {
				return cli.Exit(recruiting.Message(err), 1)
			}
			if err := os.WriteFile(c.String("out"), buf.Bytes(), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", c.String("out"), err)
			}
			return writeJSON(c, map[string]any{
				"archive": c.String("out"),
				"entries": result.Entries,
				"skipped": result.Skipped,
			})
		},
	}
}

func combineCommand() *cli.Command {
	return &cli.Command{
		Name:  "combine",
		Usage: "Merge the PDFs of a local zip archive into batches",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "in", Usage: "Input zip archive", Required: true},
			&cli.StringFlag{Name: "out", Usage: "Output zip archive", Value: "combined_pdfs.zip"},
			&cli.IntFlag{Name: "per-file", Usage: "PDFs per combined file", Value: pdfbatch.DefaultBatchSize},
		},
		Action: func(c *cli.Context) error {
			if _, _, err := loadConfig(c); err != nil {
				return err
			}

			data, err := os.ReadFile(c.String("in"))
			if err != nil {
				return cli.Exit(fmt.Sprintf("read %s: %v", c.String("in"), err), 1)
			}

			out, merged, err := pdfbatch.NewAssembler().CombineArchive(data, c.Int("per-file"))
			if err != nil {
				if msg, ok := pdfbatch.Message(err); ok {
					return cli.Exit(msg, 1)
				}
				return fmt.Errorf("combine %s: %w", c.String("in"), err)
			}
			if err := os.WriteFile(c.String("out"), out, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", c.String("out"), err)
			}

			summary := make([]map[string]any, 0, len(merged))
			for _, m := range merged {
				summary = append(summary, map[string]any{
					"name":    m.Name,
					"pages":   m.Pages,
					"sources": len(m.Sources),
					"skipped": m.Skipped,
				})
			}
			return writeJSON(c, summary)
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Action: func(c *cli.Context) error {
			return writeJSON(c, map[string]string{"version": version})
		},
	}
}
