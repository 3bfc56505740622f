// Package cli turns command-line arguments into an app.Config. The
// surface is deliberately thin: two subcommands sharing one flag set,
// with project-scoped settings living in aidef.hcl.
package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/towc/aidef-sub001/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

const usageText = `aidef - compiles spec files into a navigable tree and generates code from its leaves.

Usage:
  aidef compile [options] SPEC_PATH
  aidef build   [options]

Commands:
  compile   Expand SPEC_PATH (a .aid file) into the persisted spec tree.
  build     Run code generation for every leaf of the persisted tree.

Options:
`

// Parse processes command-line arguments. It returns a populated config,
// a boolean indicating the program should exit cleanly (help), or an
// ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	if len(args) == 0 {
		fmt.Fprint(output, usageText)
		return nil, true, nil
	}

	command := args[0]
	flagSet := flag.NewFlagSet("aidef", flag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.Usage = func() {
		fmt.Fprint(output, usageText)
		flagSet.PrintDefaults()
	}

	configFlag := flagSet.String("config", "", "Path to aidef.hcl (default ./aidef.hcl).")
	cFlag := flagSet.String("c", "", "Path to aidef.hcl (shorthand).")
	treeFlag := flagSet.String("tree", "", "Tree root override.")
	outFlag := flagSet.String("out", "", "Output root override (build).")
	parallelismFlag := flagSet.Int("parallelism", 0, "Override limits.parallelism from the config file.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args[1:]); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}
	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	configPath := *configFlag
	if configPath == "" {
		configPath = *cFlag
	}

	cfg := app.Config{
		Command:        app.Command(command),
		ConfigPath:     configPath,
		ConfigExplicit: configPath != "",
		TreeRoot:       *treeFlag,
		OutputRoot:     *outFlag,
		Parallelism:    *parallelismFlag,
		LogFormat:      logFormat,
		LogLevel:       logLevel,
	}

	switch command {
	case "compile":
		if flagSet.NArg() != 1 {
			return nil, false, &ExitError{Code: 2, Message: "compile requires exactly one SPEC_PATH argument"}
		}
		cfg.SpecPath = flagSet.Arg(0)
	case "build":
		if flagSet.NArg() != 0 {
			return nil, false, &ExitError{Code: 2, Message: "build takes no positional arguments"}
		}
	case "help", "-h", "--help":
		fmt.Fprint(output, usageText)
		flagSet.PrintDefaults()
		return nil, true, nil
	default:
		return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("unknown command %q", command)}
	}

	parsed, err := app.NewConfig(cfg)
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	return parsed, false, nil
}
