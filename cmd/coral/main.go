package main

import (
	"fmt"
	"os"
	"strings"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		case "--version", "version":
			fmt.Println("coral-agents", version)
			return
		}
	}

	if len(os.Args) < 2 || strings.HasPrefix(os.Args[1], "-") {
		exitOn("serve", runServe())
		return
	}

	args := os.Args[2:]
	switch os.Args[1] {
	case "serve":
		exitOn("serve", runServe())
	case "orchestrate":
		exitOn("orchestrate", runOrchestrate(args))
	case "agents":
		exitOn("agents", runAgents())
	case "mcp":
		exitOn("mcp", runMCP())
	case "doctor":
		exitOn("doctor", runDoctor())
	case "encrypt":
		exitOn("encrypt", runEncrypt(args))
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'coral --help' for usage information.\n", os.Args[1])
		os.Exit(1)
	}
}

func exitOn(cmd string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`coral - multi-agent workflow gateway

USAGE:
    coral [COMMAND] [FLAGS]

COMMANDS:
    serve                  Run the gateway and built-in agents (default)
    orchestrate <request>  Run one workflow and print the result as JSON
                           Flags: --code-file PATH, --file-path PATH,
                                  --file-type EXT, --framework NAME
    agents                 List the agents the config registers
    mcp                    Serve the workflow as MCP tools on stdio
    doctor                 Run health checks on your setup
    encrypt <value>        Encrypt a secret for the config file
                           (passphrase from CORAL_CONFIG_KEY)
    version                Print the version

FLAGS:
    -h, --help         Show this help message
    --config PATH      Config file path (default: ./coral.yaml)

CONFIGURATION:
    Config file: ./coral.yaml, or $CORAL_CONFIG
    Environment: CORAL_* variables override config

EXAMPLES:
    coral                                     # Serve on 127.0.0.1:8080
    coral orchestrate "Build a login form"
    coral orchestrate "Fix the bugs" --code-file src/app.js
    CORAL_CONFIG_KEY=... coral encrypt s3cret`)
}

// configPath returns --config, $CORAL_CONFIG, or coral.yaml.
func configPath() string {
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if v, ok := strings.CutPrefix(arg, "--config="); ok {
			return v
		}
	}
	if p := os.Getenv("CORAL_CONFIG"); p != "" {
		return p
	}
	return "coral.yaml"
}
