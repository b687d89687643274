package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"coral-agents/internal/adapter/mcpserver"
	"coral-agents/internal/domain"
	"coral-agents/internal/infra/config"
	"coral-agents/internal/infra/logger"
	"coral-agents/internal/infra/tracer"
)

// bootstrap loads config and sets up logging and tracing.
func bootstrap(ctx context.Context) (*config.Config, *slog.Logger, func(), error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("config: %w", err)
	}

	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("logger: %w", err)
	}

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		logCloser()
		return nil, nil, nil, fmt.Errorf("tracer: %w", err)
	}

	return cfg, log, func() {
		if err := tracerShutdown(context.Background()); err != nil {
			log.Warn("tracer shutdown failed", "error", err)
		}
		logCloser()
	}, nil
}

func runServe() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, log, done, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer done()

	rt, cleanup, err := initRuntime(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	errCh, err := rt.startGateway(ctx)
	if err != nil {
		return fmt.Errorf("gateway: %w", err)
	}

	log.Info("coral-agents starting",
		"version", version,
		"addr", rt.gateway.BoundAddr(),
		"agents", rt.registry.Len(),
		"threads", rt.store.Name(),
		"circuit_breaker", rt.breaker != nil,
		"auth", cfg.Gateway.Auth.Type == "static",
	)

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		return <-errCh
	case err := <-errCh:
		return err
	}
}

// orchestrateArgs are the parsed arguments of the orchestrate command.
type orchestrateArgs struct {
	Request   string
	CodeFile  string
	FilePath  string
	FileType  string
	Framework string
}

// parseOrchestrateArgs reads the request words and the --code-file,
// --file-path, --file-type and --framework flags in either form.
func parseOrchestrateArgs(args []string) (orchestrateArgs, error) {
	var out orchestrateArgs
	var words []string
	flags := map[string]*string{
		"--code-file": &out.CodeFile,
		"--file-path": &out.FilePath,
		"--file-type": &out.FileType,
		"--framework": &out.Framework,
		"--config":    new(string),
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if name, value, ok := strings.Cut(arg, "="); ok && flags[name] != nil {
			*flags[name] = value
			continue
		}
		if dst := flags[arg]; dst != nil {
			if i+1 >= len(args) {
				return out, fmt.Errorf("%s needs a value", arg)
			}
			*dst = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--") {
			return out, fmt.Errorf("unknown flag %s", arg)
		}
		words = append(words, arg)
	}

	out.Request = strings.TrimSpace(strings.Join(words, " "))
	if out.Request == "" {
		return out, fmt.Errorf("usage: coral orchestrate <request> [--code-file PATH]")
	}
	if out.FilePath == "" {
		out.FilePath = out.CodeFile
	}
	return out, nil
}

// requestContext reads the code file, if any, and fills in the file type
// from its extension.
func (a orchestrateArgs) requestContext() (domain.RequestContext, error) {
	rc := domain.RequestContext{
		FilePath:  a.FilePath,
		FileType:  a.FileType,
		Framework: a.Framework,
	}
	if a.CodeFile != "" {
		data, err := os.ReadFile(a.CodeFile)
		if err != nil {
			return rc, fmt.Errorf("read code file: %w", err)
		}
		rc.Code = string(data)
	}
	if rc.FileType == "" && rc.FilePath != "" {
		if i := strings.LastIndexByte(rc.FilePath, '.'); i >= 0 && i < len(rc.FilePath)-1 {
			rc.FileType = rc.FilePath[i+1:]
		}
	}
	return rc, nil
}

// localGateway makes a one-shot command serve the built-in agents on an
// ephemeral loopback port.
func localGateway(cfg *config.Config) {
	if cfg.Gateway.BuiltinAgents {
		cfg.Gateway.Addr = "127.0.0.1:0"
		cfg.Gateway.PublicURL = ""
	}
}

func runOrchestrate(args []string) error {
	oa, err := parseOrchestrateArgs(args)
	if err != nil {
		return err
	}
	rc, err := oa.requestContext()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, log, done, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer done()
	localGateway(cfg)

	rt, cleanup, err := initRuntime(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()
	if _, err := rt.startGateway(ctx); err != nil {
		return fmt.Errorf("gateway: %w", err)
	}

	res, err := rt.orchestrator.Orchestrate(ctx, oa.Request, rc)
	if err != nil {
		if stage := domain.StageOf(err); stage != "" {
			return fmt.Errorf("[%s] stage %s: %w", domain.ErrorCodeOf(err), stage, err)
		}
		return fmt.Errorf("[%s] %w", domain.ErrorCodeOf(err), err)
	}
	return writeResult(os.Stdout, res)
}

func writeResult(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runAgents() error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return printAgents(os.Stdout, agentTable(cfg))
}

// agentTable lists configured agents, then built-in agents for any
// capability left uncovered.
func agentTable(cfg *config.Config) []domain.AgentDescriptor {
	agents := configuredAgents(cfg)
	if !cfg.Gateway.BuiltinAgents {
		return agents
	}
	covered := make(map[domain.Capability]bool)
	for _, a := range agents {
		covered[a.Capability] = true
	}
	for _, d := range defaultDescriptors(cfg) {
		if !covered[d.Capability] {
			agents = append(agents, d)
		}
	}
	return agents
}

func printAgents(w io.Writer, agents []domain.AgentDescriptor) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CAPABILITY\tID\tSTATUS\tENDPOINT")
	for _, a := range agents {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", a.Capability, a.ID, a.Status, a.Endpoint)
	}
	return tw.Flush()
}

func runMCP() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, log, done, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer done()
	localGateway(cfg)

	rt, cleanup, err := initRuntime(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()
	if _, err := rt.startGateway(ctx); err != nil {
		return fmt.Errorf("gateway: %w", err)
	}

	s := mcpserver.New(mcpserver.Deps{
		Registry:     rt.registry,
		Router:       rt.router,
		Orchestrator: rt.orchestrator,
		Store:        rt.store,
		Logger:       log,
	}, version)
	log.Info("mcp server listening on stdio", "agents", rt.registry.Len())
	return mcpserver.Serve(ctx, s, os.Stdin, os.Stdout)
}

func runEncrypt(args []string) error {
	if len(args) != 1 || args[0] == "" {
		return fmt.Errorf("usage: coral encrypt <value>")
	}
	passphrase := os.Getenv(config.PassphraseEnv)
	if passphrase == "" {
		return fmt.Errorf("%s is not set", config.PassphraseEnv)
	}
	enc, err := config.EncryptSecret(args[0], passphrase)
	if err != nil {
		return err
	}
	fmt.Println(enc)
	return nil
}
