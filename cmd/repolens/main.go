package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/repolens/repolens/internal/cache"
	"github.com/repolens/repolens/internal/config"
	"github.com/repolens/repolens/internal/github"
	"github.com/repolens/repolens/internal/logging"
	"github.com/repolens/repolens/internal/proxy"
)

const defaultConfigPath = "configs/config.yaml"

const usage = `usage: repolens [-config path] <command> [args]

commands:
  proxy                 run the caching proxy in front of the GitHub API
  snapshot owner/repo   fetch repository, contributors, pull requests and languages
  get <api-path>        fetch one API path, e.g. /repos/octocat/Hello-World/commits
`

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		logrus.Fatalf("%v", err)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	flags := flag.NewFlagSet("repolens", flag.ContinueOnError)
	flags.Usage = func() { fmt.Fprint(flags.Output(), usage) }
	configPath := flags.String("config", "", "path to a YAML or TOML config file")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	if err := logging.Setup(cfg.Log.Level, cfg.Log.Format); err != nil {
		return err
	}

	rest := flags.Args()
	if len(rest) == 0 {
		flags.Usage()
		return errors.New("missing command")
	}

	switch rest[0] {
	case "proxy":
		return runProxy(ctx, cfg)
	case "snapshot":
		if len(rest) != 2 {
			return errors.New("usage: repolens snapshot owner/repo")
		}
		return runSnapshot(ctx, cfg, rest[1], stdout)
	case "get":
		if len(rest) != 2 {
			return errors.New("usage: repolens get <api-path>")
		}
		return runGet(ctx, cfg, rest[1], stdout)
	default:
		flags.Usage()
		return fmt.Errorf("unknown command %q", rest[0])
	}
}

// loadConfig reads path, falling back to the default location when it exists and
// to environment-only configuration otherwise.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			path = defaultConfigPath
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runProxy(ctx context.Context, cfg *config.Config) error {
	server, err := proxy.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create proxy server: %w", err)
	}
	return server.Start(ctx)
}

// newGitHubClient wires a fresh response cache, with its sweep loop, to an API client
func newGitHubClient(ctx context.Context, cfg *config.Config) (*github.Client, func(), error) {
	policy, err := cfg.CachePolicy()
	if err != nil {
		return nil, nil, err
	}
	interval, err := cfg.GetCleanupInterval()
	if err != nil {
		return nil, nil, err
	}
	timeout, err := cfg.GetUpstreamTimeout()
	if err != nil {
		return nil, nil, err
	}

	c := cache.New(cache.WithPolicy(policy))
	stopSweep := c.Start(ctx, interval)

	fetcher := cache.NewClient(c, &http.Client{Timeout: timeout})
	return github.New(fetcher, cfg.Upstream.BaseURL, cfg.Upstream.Token), stopSweep, nil
}

func runSnapshot(ctx context.Context, cfg *config.Config, target string, stdout io.Writer) error {
	owner, repo, err := github.ParseRepo(target)
	if err != nil {
		return err
	}

	client, stopSweep, err := newGitHubClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer stopSweep()

	snap, err := client.Snapshot(ctx, owner, repo)
	if err != nil {
		return err
	}
	return writeJSON(stdout, snap)
}

func runGet(ctx context.Context, cfg *config.Config, path string, stdout io.Writer) error {
	client, stopSweep, err := newGitHubClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer stopSweep()

	path, rawQuery, _ := strings.Cut(path, "?")
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return fmt.Errorf("invalid query %q: %w", rawQuery, err)
	}

	var out any
	if err := client.Get(ctx, path, query, &out); err != nil {
		return err
	}
	return writeJSON(stdout, out)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}
