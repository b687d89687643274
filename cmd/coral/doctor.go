package main

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"coral-agents/internal/domain"
	"coral-agents/internal/infra/config"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

var notLoaded = CheckResult{Status: StatusFail, Message: "cannot check: config not loaded"}

// runDoctor executes all health checks and reports results.
func runDoctor() error {
	cfgPath := configPath()
	cfg, cfgErr := config.Load(cfgPath)

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(cfgPath, cfgErr)},
		{Name: "Secrets", Fn: checkSecrets},
		{Name: "Agents", Fn: checkAgents},
		{Name: "Agent connectivity", Fn: checkAgentConnectivity},
		{Name: "Thread store", Fn: checkThreadStore},
		{Name: "Gateway exposure", Fn: checkGatewayExposure},
		{Name: "Gateway port", Fn: checkGatewayPort},
	}

	fmt.Println("coral doctor")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println()

	results := make([]CheckResult, 0, len(checks))
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name
		results = append(results, result)

		fmt.Printf("  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Printf("      Fix: %s\n", result.Fix)
		}
	}

	pass, warn, fail := summarize(results)
	fmt.Println()
	fmt.Println(strings.Repeat("-", 50))
	fmt.Printf("Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		fmt.Println("\nFix the FAIL issues above before running coral.")
		return fmt.Errorf("%d check(s) failed", fail)
	}
	if warn > 0 {
		fmt.Println("\ncoral should work, but consider addressing the warnings.")
	} else {
		fmt.Println("\nAll checks passed! coral is ready to run.")
	}
	return nil
}

func summarize(results []CheckResult) (pass, warn, fail int) {
	for _, r := range results {
		switch r.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}
	return pass, warn, fail
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

// checkConfigFile reports whether the config file exists and loaded. A
// missing file is only a warning because defaults apply.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     fmt.Sprintf("Correct %s; see 'coral --help' for CORAL_* overrides", cfgPath),
			}
		}
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config file at %s; using defaults", cfgPath),
			}
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("config loaded from %s", cfgPath),
		}
	}
}

// checkSecrets fails when encrypted values remain because no passphrase was set.
func checkSecrets(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	var sealed []string
	for i, a := range cfg.Agents {
		if strings.HasPrefix(a.Token, "enc:") {
			sealed = append(sealed, fmt.Sprintf("agents[%d].token", i))
		}
	}
	for i, t := range cfg.Gateway.Auth.Tokens {
		if strings.HasPrefix(t.Token, "enc:") {
			sealed = append(sealed, fmt.Sprintf("gateway.auth.tokens[%d]", i))
		}
	}
	if len(sealed) > 0 {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("encrypted values not decrypted: %s", strings.Join(sealed, ", ")),
			Fix:     fmt.Sprintf("Export %s with the passphrase used by 'coral encrypt'", config.PassphraseEnv),
		}
	}
	return CheckResult{Status: StatusPass, Message: "no undecrypted secrets"}
}

// checkAgents verifies every workflow capability has an agent.
func checkAgents(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	agents := agentTable(cfg)

	var missing, degraded []string
	for _, c := range domain.Capabilities() {
		i := slices.IndexFunc(agents, func(a domain.AgentDescriptor) bool { return a.Capability == c })
		if i < 0 {
			missing = append(missing, string(c))
			continue
		}
		if agents[i].Status != domain.AgentActive {
			degraded = append(degraded, fmt.Sprintf("%s (%s)", c, agents[i].Status))
		}
	}

	if len(missing) > 0 {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("no agent for: %s", strings.Join(missing, ", ")),
			Fix:     "Add the missing capabilities under agents, or set gateway.builtin_agents: true",
		}
	}
	if len(degraded) > 0 {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("agents not active: %s", strings.Join(degraded, ", ")),
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%d agent(s) cover all capabilities (%d configured)", len(agents), len(cfg.Agents)),
	}
}

// checkAgentConnectivity dials each configured remote agent.
func checkAgentConnectivity(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	if len(cfg.Agents) == 0 {
		return CheckResult{Status: StatusPass, Message: "only built-in agents; served by the gateway"}
	}

	var unreachable []string
	for _, a := range cfg.Agents {
		if err := dialEndpoint(a.Endpoint, 3*time.Second); err != nil {
			unreachable = append(unreachable, fmt.Sprintf("%s (%v)", a.Capability, err))
		}
	}
	if len(unreachable) > 0 {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("unreachable: %s", strings.Join(unreachable, "; ")),
			Fix:     "Start the agent services or correct their endpoints",
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%d remote agent(s) reachable", len(cfg.Agents)),
	}
}

func dialEndpoint(endpoint string, timeout time.Duration) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return err
	}
	host := u.Host
	if u.Port() == "" {
		port := "80"
		if u.Scheme == "https" {
			port = "443"
		}
		host = net.JoinHostPort(u.Hostname(), port)
	}
	conn, err := net.DialTimeout("tcp", host, timeout)
	if err != nil {
		return err
	}
	return conn.Close()
}

// checkThreadStore verifies the sqlite directory is writable.
func checkThreadStore(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	if cfg.Threads.Backend != "sqlite" {
		return CheckResult{Status: StatusPass, Message: "in-memory thread store (history is lost on restart)"}
	}

	dir, _ := filepath.Abs(filepath.Dir(cfg.Threads.Path))
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot create %s: %v", dir, err),
			Fix:     fmt.Sprintf("Create the directory: mkdir -p %s", dir),
		}
	}
	probe := filepath.Join(dir, ".doctor-check")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("%s is not writable: %v", dir, err),
			Fix:     fmt.Sprintf("Fix permissions: chmod 700 %s", dir),
		}
	}
	os.Remove(probe)

	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("sqlite at %s", cfg.Threads.Path),
	}
}

// checkGatewayExposure warns when a non-loopback gateway has no auth or
// rate limit.
func checkGatewayExposure(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	host, _, err := net.SplitHostPort(cfg.Gateway.Addr)
	if err != nil {
		return CheckResult{Status: StatusFail, Message: fmt.Sprintf("invalid gateway.addr %q", cfg.Gateway.Addr)}
	}
	if isLoopback(host) {
		return CheckResult{Status: StatusPass, Message: fmt.Sprintf("listening on loopback %s", cfg.Gateway.Addr)}
	}

	var gaps []string
	if cfg.Gateway.Auth.Type != "static" {
		gaps = append(gaps, "no auth")
	}
	if !cfg.Gateway.RateLimit.Enabled {
		gaps = append(gaps, "no rate limit")
	}
	if len(gaps) > 0 {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("%s is reachable from the network with %s", cfg.Gateway.Addr, strings.Join(gaps, " and ")),
			Fix:     "Set gateway.auth.type: static with tokens, or bind to 127.0.0.1",
		}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%s protected by token auth and rate limit", cfg.Gateway.Addr)}
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// checkGatewayPort verifies the gateway address can be bound.
func checkGatewayPort(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	ln, err := net.Listen("tcp", cfg.Gateway.Addr)
	if err != nil {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("cannot bind %s: %v", cfg.Gateway.Addr, err),
			Fix:     "Stop the process using the port (is coral already running?) or change gateway.addr",
		}
	}
	ln.Close()
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%s is free", cfg.Gateway.Addr)}
}
