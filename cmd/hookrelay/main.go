package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/hookrelay/internal/apigw"
	"github.com/mattjoyce/hookrelay/internal/backend"
	"github.com/mattjoyce/hookrelay/internal/config"
	"github.com/mattjoyce/hookrelay/internal/doctor"
	"github.com/mattjoyce/hookrelay/internal/log"
	"github.com/mattjoyce/hookrelay/internal/relay"
	"github.com/mattjoyce/hookrelay/internal/signature"
	"github.com/mattjoyce/hookrelay/internal/topic"
	"github.com/mattjoyce/hookrelay/internal/webhook"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	if cmd == "--version" {
		return runVersion(args)
	}

	switch cmd {
	case "serve":
		if hasHelpFlag(args) {
			printServeHelp()
			return 0
		}
		return runServe(args)
	case "lambda":
		if hasHelpFlag(args) {
			printLambdaHelp()
			return 0
		}
		return runLambda(args)
	case "config":
		return runConfigNoun(args)
	case "algorithms":
		return runAlgorithms(args)
	case "sign":
		if hasHelpFlag(args) {
			printSignHelp()
			return 0
		}
		return runSign(args)
	case "version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: hookrelay version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("hookrelay %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}

	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	resolvedCommit := strings.TrimSpace(gitCommit)
	if resolvedCommit == "" || resolvedCommit == "unknown" {
		resolvedCommit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if resolvedCommit != "" {
		info.Commit = shortenCommit(resolvedCommit)
	}

	resolvedBuildTime := strings.TrimSpace(buildDate)
	if resolvedBuildTime == "" || resolvedBuildTime == "unknown" {
		resolvedBuildTime = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if normalizedBuildTime, ok := normalizeBuildTimeUTC(resolvedBuildTime); ok {
		info.BuildTime = normalizedBuildTime
	}

	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func normalizeBuildTimeUTC(raw string) (string, bool) {
	if raw == "" || raw == "unknown" {
		return "", false
	}

	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return "", false
	}

	return t.UTC().Format(time.RFC3339), true
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

func printUsage() {
	fmt.Print(`hookrelay - Relay signed webhooks to publish/subscribe topics

Usage:
  hookrelay <command> [flags]

Runtime Commands:
  serve             Run the HTTP webhook listener in foreground
  lambda            Run as an AWS Lambda handler behind API Gateway

Config Commands:
  config check      Validate configuration and report warnings
  config show       Print the effective configuration (secrets masked)
  config get <path> Print one value, e.g. backend.sns.region

Signature Commands:
  algorithms        List supported digest algorithms and blacklist status
  sign              Compute an X-Hub-Signature value for a payload

General:
  --version         Show version information
  version           Show version information
  help              Show this help message

Configuration is read from --config (YAML), then .env, then the environment.
`)
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func printServeHelp() {
	fmt.Println("Usage: hookrelay serve [--config PATH]")
	fmt.Println("Listens on LISTEN (default 127.0.0.1:8080) until SIGINT or SIGTERM.")
}

func printLambdaHelp() {
	fmt.Println("Usage: hookrelay lambda [--config PATH]")
	fmt.Println("Serves API Gateway proxy events; routes must expose an {integration} path parameter.")
}

func printSignHelp() {
	fmt.Println("Usage: hookrelay sign [--config PATH] [--algorithm NAME] [--secret S] [--file PATH]")
	fmt.Println("Reads the payload from --file or stdin. The secret defaults to the configured SECRET.")
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: hookrelay config <check|show|get> [--config PATH] [--json] [path]")
}

// buildRelay wires the configured backend, validator and router into a relay
// handler. The returned close function releases the backend.
func buildRelay(ctx context.Context, cfg *config.Config) (*relay.Handler, backend.CloseFunc, error) {
	b, closeFn, err := backend.Open(ctx, cfg.Backend)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s backend: %w", cfg.Backend.Kind, err)
	}

	validator := signature.NewValidator(cfg.Signature.Secret, cfg.Signature.Blacklist)
	router := topic.NewRouter(b, log.WithComponent("topic"))
	return relay.NewHandler(validator, router, log.WithComponent("relay")), closeFn, nil
}

func loadForRuntime(name string, args []string) (*config.Config, int) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to YAML configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return nil, 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, 1
	}

	log.Setup(cfg.EffectiveLogLevel())
	logger := log.WithComponent("main")
	logger.Info("hookrelay starting",
		"version", version,
		"mode", name,
		"backend", cfg.Backend.Kind,
		"blacklist", cfg.SortedBlacklist(),
	)
	if !cfg.SecretConfigured() {
		logger.Warn("no signature secret configured; accepting unsigned webhooks")
	}
	return cfg, 0
}

func runServe(args []string) int {
	cfg, code := loadForRuntime("serve", args)
	if cfg == nil {
		return code
	}
	logger := log.WithComponent("main")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler, closeBackend, err := buildRelay(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize relay", "error", err)
		return 1
	}
	defer func() {
		if err := closeBackend(); err != nil {
			logger.Warn("backend close failed", "error", err)
		}
	}()

	webhookConfig, err := webhook.FromGlobalConfig(cfg)
	if err != nil {
		logger.Error("failed to configure webhook server", "error", err)
		return 1
	}
	server := webhook.New(webhookConfig, handler, log.WithComponent("webhook"))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("webhook: %w", err)
		}
		close(errCh)
	}()

	logger.Info("hookrelay running (press Ctrl+C to stop)", "listen", webhookConfig.Listen)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
		if err := <-errCh; err != nil {
			logger.Error("shutdown failed", "error", err)
			return 1
		}
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		return 1
	}

	logger.Info("hookrelay stopped")
	return 0
}

func runLambda(args []string) int {
	cfg, code := loadForRuntime("lambda", args)
	if cfg == nil {
		return code
	}
	logger := log.WithComponent("main")

	handler, closeBackend, err := buildRelay(context.Background(), cfg)
	if err != nil {
		logger.Error("failed to initialize relay", "error", err)
		return 1
	}

	// startLambda does not return, so the backend is released from the
	// runtime's SIGTERM hook instead of a defer.
	release := func() {
		if err := closeBackend(); err != nil {
			logger.Warn("backend close failed", "error", err)
		}
	}

	adapter := apigw.New(handler, cfg.HTTP.MaxBodyBytes, log.WithComponent("apigw"))
	startLambda(adapter.Handle, release)
	return 0
}

// startLambda hands control to the Lambda runtime. Tests replace it.
var startLambda = func(handler any, onShutdown func()) {
	lambda.StartWithOptions(handler, lambda.WithEnableSIGTERM(onShutdown))
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}

	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		return runConfigCheck(actionArgs)
	case "show":
		return runConfigShow(actionArgs)
	case "get":
		return runConfigGet(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func runConfigCheck(args []string) int {
	var configPath string
	var strict, jsonOut bool

	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to YAML configuration file")
	fs.BoolVar(&strict, "strict", false, "Treat warnings as errors")
	fs.BoolVar(&jsonOut, "json", false, "Output in JSON")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}

	result := doctor.New(cfg).Validate()

	if jsonOut {
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(out)
	} else {
		fmt.Print(doctor.FormatHuman(result))
	}

	if !result.Valid {
		return 1
	}
	if strict && len(result.Warnings) > 0 {
		return 2
	}
	return 0
}

func runConfigShow(args []string) int {
	var configPath string
	var jsonOut bool

	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to YAML configuration file")
	fs.BoolVar(&jsonOut, "json", false, "Output in JSON")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}
	redacted := cfg.Redacted()

	if jsonOut {
		data, err := json.MarshalIndent(redacted, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	data, err := yaml.Marshal(redacted)
	if err != nil {
		fmt.Fprintf(os.Stderr, "YAML format error: %v\n", err)
		return 1
	}
	fmt.Print(string(data))
	return 0
}

func runConfigGet(args []string) int {
	var configPath string

	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to YAML configuration file")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: hookrelay config get [--config PATH] <path>")
		return 1
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}

	val, err := cfg.GetPath(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	switch v := val.(type) {
	case map[string]any:
		data, err := yaml.Marshal(v)
		if err != nil {
			fmt.Fprintf(os.Stderr, "YAML format error: %v\n", err)
			return 1
		}
		fmt.Print(string(data))
	default:
		fmt.Println(v)
	}
	return 0
}

type algorithmStatus struct {
	Name    string `json:"name"`
	Allowed bool   `json:"allowed"`
}

func runAlgorithms(args []string) int {
	var configPath string
	var jsonOut bool

	fs := flag.NewFlagSet("algorithms", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to YAML configuration file")
	fs.BoolVar(&jsonOut, "json", false, "Output in JSON")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}

	// Any non-empty secret; only the blacklist matters here.
	v := signature.NewValidator("x", cfg.Signature.Blacklist)
	statuses := make([]algorithmStatus, 0, len(signature.Algorithms()))
	for _, name := range signature.Algorithms() {
		statuses = append(statuses, algorithmStatus{Name: name, Allowed: v.Allowed(name)})
	}

	if jsonOut {
		data, err := json.MarshalIndent(statuses, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	for _, s := range statuses {
		status := "allowed"
		if !s.Allowed {
			status = "blacklisted"
		}
		fmt.Printf("%-12s %s\n", s.Name, status)
	}
	return 0
}

func runSign(args []string) int {
	var configPath, algorithm, secret, file string

	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to YAML configuration file")
	fs.StringVar(&algorithm, "algorithm", "sha1", "Digest algorithm")
	fs.StringVar(&secret, "secret", "", "Shared secret (defaults to the configured SECRET)")
	fs.StringVar(&file, "file", "", "Payload file (defaults to stdin)")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}
	if secret == "" {
		secret = cfg.Signature.Secret
	}
	if secret == "" {
		fmt.Fprintln(os.Stderr, "Error: no secret given and none configured")
		return 1
	}

	var payload []byte
	if file != "" {
		payload, err = os.ReadFile(file)
	} else {
		payload, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read payload: %v\n", err)
		return 1
	}

	value, err := signature.Sign(algorithm, []byte(secret), payload)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if !signature.NewValidator(secret, cfg.Signature.Blacklist).Allowed(algorithm) {
		fmt.Fprintf(os.Stderr, "Warning: %s is blacklisted; the relay will reject this signature\n", algorithm)
	}

	fmt.Println(value)
	return 0
}
