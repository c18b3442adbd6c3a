// Package main is the mensetsu CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/mensetsu/internal/auth"
	"github.com/hyperjump/mensetsu/internal/cli"
	"github.com/hyperjump/mensetsu/internal/config"
	"github.com/hyperjump/mensetsu/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/mensetsu/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, config.yaml in the current
// directory wins if present, and a missing default file falls back to built-in defaults
// rooted at the current directory. Returns the config and the path that was used.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		cwd, err := os.Getwd()
		if err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				path = fallback
			} else if _, statErr := os.Stat(defaultConfigPath); errors.Is(statErr, os.ErrNotExist) {
				cfg, err := config.Default(cwd)
				if err != nil {
					return nil, "", err
				}
				return cfg, "", nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	var err error
	switch command := os.Args[1]; command {
	case "server":
		err = runServer(os.Args[2:])
	case "index":
		err = runIndex(os.Args[2:])
	case "ask":
		err = runAsk(os.Args[2:])
	case "resumes":
		err = runResumes(os.Args[2:])
	case "status":
		err = runStatus(os.Args[2:])
	case "token":
		err = runToken(os.Args[2:])
	case "version", "--version", "-v":
		fmt.Printf("mensetsu version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServer(args []string) error {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(args)

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()
	logger.Info("config loaded", zap.String("config_path", resolvedConfigPath), zap.Bool("debug", debugMode))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer components.Close()

	if components.Inbox != nil {
		if err := components.Inbox.Start(ctx); err != nil {
			return fmt.Errorf("failed to start inbox watcher: %w", err)
		}
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := components.Server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}
	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return components.Server.Stop(shutdownCtx)
}

// clientFlags registers the flags shared by commands that talk to a running server.
func clientFlags(fs *flag.FlagSet) (serverURL, token, output *string) {
	serverURL = fs.String("server", envOr("MENSETSU_SERVER", defaultServerURL), "server URL")
	token = fs.String("token", os.Getenv("MENSETSU_TOKEN"), "bearer token (default $MENSETSU_TOKEN)")
	output = fs.String("output", "text", "output format: text or json")
	return serverURL, token, output
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// reorderArgs moves flags given after positional arguments to the front so the flag
// package sees them.
func reorderArgs(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runIndex(args []string) error {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	serverURL, token, output := clientFlags(fs)
	_ = fs.Parse(reorderArgs(args))
	if fs.NArg() < 1 {
		return errors.New("usage: mensetsu index [flags] <file.pdf>")
	}
	format, err := cli.ParseFormat(*output)
	if err != nil {
		return err
	}
	c := newClient(*serverURL, *token)
	rec, err := c.Upload(context.Background(), fs.Arg(0))
	if err != nil {
		return err
	}
	return cli.WriteResume(os.Stdout, rec, format)
}

func runAsk(args []string) error {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	serverURL, token, output := clientFlags(fs)
	resumeID := fs.String("resume", "", "restrict the question to one resume id")
	topK := fs.Int("top-k", 0, "number of chunks to ground the answer on (default from server)")
	sources := fs.Bool("sources", false, "also list the chunks the answer is grounded on")
	_ = fs.Parse(reorderArgs(args))
	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		return errors.New("usage: mensetsu ask [flags] <question>")
	}
	format, err := cli.ParseFormat(*output)
	if err != nil {
		return err
	}
	c := newClient(*serverURL, *token)
	answer, err := c.Ask(context.Background(), question, *resumeID, *topK)
	if err != nil {
		return err
	}
	if !*sources {
		return cli.WriteAnswer(os.Stdout, answer, format)
	}
	result, err := c.Search(context.Background(), question, *resumeID, *topK)
	if err != nil {
		return err
	}
	return cli.WriteAnswerWithSources(os.Stdout, answer, result.Matches, format)
}

func runResumes(args []string) error {
	fs := flag.NewFlagSet("resumes", flag.ExitOnError)
	serverURL, token, output := clientFlags(fs)
	_ = fs.Parse(args)
	format, err := cli.ParseFormat(*output)
	if err != nil {
		return err
	}
	list, err := newClient(*serverURL, *token).Resumes(context.Background())
	if err != nil {
		return err
	}
	return cli.WriteResumes(os.Stdout, list, format)
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL, token, output := clientFlags(fs)
	_ = fs.Parse(args)
	format, err := cli.ParseFormat(*output)
	if err != nil {
		return err
	}
	status, err := newClient(*serverURL, *token).Status(context.Background())
	if err != nil {
		return err
	}
	return cli.WriteStatus(os.Stdout, status, format)
}

func runToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	user := fs.String("user", "", "user id to put in the token subject")
	ttl := fs.Duration("ttl", 0, "token lifetime (default auth.token_ttl)")
	_ = fs.Parse(args)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	verifier, err := auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		return err
	}
	lifetime := cfg.Auth.TokenTTL
	if *ttl > 0 {
		lifetime = *ttl
	}
	tok, err := verifier.IssueToken(*user, lifetime)
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}

func printUsage() {
	fmt.Println(`mensetsu - resume indexing and question answering

Usage:
  mensetsu server [flags]              Start the HTTP server (and inbox watcher if configured)
  mensetsu index [flags] <file.pdf>    Upload and index a resume
  mensetsu ask [flags] <question>      Ask a question about your resumes
  mensetsu resumes [flags]             List your resumes
  mensetsu status [flags]              Show index and storage status
  mensetsu token --user <id>           Mint a bearer token for local use
  mensetsu version                     Show version
  mensetsu help                        Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/mensetsu/config.yaml)
  --debug            Enable debug logging

Client Flags (index, ask, resumes, status):
  --server string    Server URL (default: $MENSETSU_SERVER or http://localhost:8080)
  --token string     Bearer token (default: $MENSETSU_TOKEN)
  --output string    Output format: text or json (default: text)

Ask Flags:
  --resume string    Restrict the question to one resume id
  --top-k int        Number of chunks used as context
  --sources          Also list the chunks the answer is grounded on

Token Flags:
  --config string    Config file path
  --user string      Subject of the token
  --ttl duration     Token lifetime (default: auth.token_ttl)

Examples:
  export MENSETSU_TOKEN=$(mensetsu token --user alice)
  mensetsu index ~/Downloads/jane-doe.pdf
  mensetsu ask "Which candidates have Kubernetes experience?"
  mensetsu ask --resume 3f2a... "Summarize the most recent role"
  mensetsu ask --sources "Who has led a platform team?"
  mensetsu status --output json`)
}
