package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/germanamz/ledgerd/pkg/engine"
	"github.com/germanamz/ledgerd/pkg/ledgerdir"
)

const version = "0.1.0"

func main() {
	cmd := "serve"
	args := os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "serve":
		err = runServe(args)
	case "mcp":
		err = runMCP(args)
	case "prompt":
		err = runPrompt(args)
	case "init":
		err = runInit(args)
	case "version":
		fmt.Println(version)
	case "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: ledgerd [command] [flags]

Commands:
  serve    Run the device session service with the websocket control endpoint (default)
  mcp      Run the service and expose device tools over MCP on stdio
  prompt   Show device prompts from a running service; esc cancels a pending selection
  init     Write a .ledgerd/config.yaml interactively
  version  Print the version

Run "ledgerd <command> -h" for command flags.
`)
}

// commonFlags are shared by every command that loads configuration.
type commonFlags struct {
	configPath string
	dir        string
	envFile    string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "path to configuration file (default: .ledgerd/config.yaml or ledgerd.yaml)")
	fs.StringVar(&c.dir, "ledgerd-dir", ledgerdir.DefaultRoot, "path to .ledgerd directory")
	fs.StringVar(&c.envFile, "env", ".env", "path to .env file (ignored if missing)")
}

// load reads .env files and the resolved config. Without a config file the
// defaults are used.
func (c commonFlags) load() (engine.Config, error) {
	d := ledgerdir.New(c.dir)

	for _, path := range []string{c.envFile, d.EnvPath()} {
		if err := loadDotEnv(path); err != nil {
			return engine.Config{}, err
		}
	}

	path, ok := d.ResolveConfig(c.configPath)
	if !ok {
		return engine.DefaultConfig(), nil
	}

	return engine.LoadConfig(path)
}
