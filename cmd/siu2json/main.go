package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/oarkflow/log"
	"github.com/oarkflow/xid"
	"github.com/urfave/cli/v2"

	"github.com/oarkflow/hl7siu/pkg/config"
	"github.com/oarkflow/hl7siu/pkg/parsers"
)

// Exit codes.
const (
	exitOK         = 0
	exitInputError = 1
	exitAllFailed  = 2
)

func main() {
	err := newApp(os.Stdout, os.Stderr).Run(os.Args)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	if coder, ok := err.(cli.ExitCoder); ok {
		return coder.ExitCode()
	}
	return exitInputError
}

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to a configuration file (BCL, YAML, or JSON)",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Write output to this file instead of stdout",
		},
		&cli.BoolFlag{
			Name:  "strict",
			Usage: "Fail messages missing SCH or PID or with malformed required timestamps",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level (trace, debug, info, warn, error)",
		},
	}
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "siu2json",
		Usage:     "Convert HL7 v2 SIU^S12 scheduling messages to JSON",
		Writer:    stdout,
		ErrWriter: stderr,
		// Exit codes are applied by main so that tests can run the app.
		ExitErrHandler: func(*cli.Context, error) {},
		Commands: []*cli.Command{
			{
				Name:      "parse",
				Usage:     "Parse an HL7 file into appointment JSON",
				ArgsUsage: "<file>",
				Flags: append(commonFlags(),
					&cli.BoolFlag{
						Name:  "compact",
						Usage: "Emit compact JSON instead of indented",
					},
					&cli.BoolFlag{
						Name:    "verbose",
						Aliases: []string{"v"},
						Usage:   "Wrap each appointment with message_index, warnings and error",
					},
					&cli.BoolFlag{
						Name:  "stream",
						Usage: "Parse message by message; JSON Lines on stdout, an appended JSON array with -o",
					},
					&cli.StringFlag{
						Name:  "format",
						Value: "json",
						Usage: "Output format for non-streamed output (json or xml)",
					},
					&cli.StringFlag{
						Name:  "metrics-file",
						Usage: "Write parser metrics in Prometheus text format to this file",
					},
				),
				Action: runParse,
			},
			{
				Name:      "records",
				Usage:     "Run the record pipeline and emit one flat record per message",
				ArgsUsage: "<file>",
				Flags: append(commonFlags(),
					&cli.StringFlag{
						Name:  "format",
						Value: "json",
						Usage: "Record format (json or csv)",
					},
					&cli.BoolFlag{
						Name:  "keep-raw",
						Usage: "Keep the raw message text in each record",
					},
				),
				Action: runRecords,
			},
		},
	}
}

// loadConfig reads --config when given and applies flag overrides.
func loadConfig(c *cli.Context) (*config.ParserConfig, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
		cfg = loaded
	}
	if c.IsSet("strict") {
		cfg.Strict = c.Bool("strict")
	}
	if c.IsSet("output") {
		cfg.Output = c.String("output")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(c.String("log-level")))
	}
	for flag, dst := range map[string]*bool{"compact": &cfg.Compact, "verbose": &cfg.Verbose, "stream": &cfg.Stream} {
		if c.IsSet(flag) {
			*dst = c.Bool(flag)
		}
	}
	if c.IsSet("metrics-file") {
		cfg.MetricsFile = c.String("metrics-file")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.ParserConfig, w io.Writer) *log.Logger {
	return &log.Logger{
		Level:  log.ParseLevel(cfg.LogLevel),
		Writer: &log.IOWriter{Writer: w},
	}
}

func newParser(cfg *config.ParserConfig, logger *log.Logger, extra ...parsers.SIUOption) *parsers.SIUParser {
	opts := []parsers.SIUOption{
		parsers.WithStrict(cfg.Strict),
		parsers.WithLogger(logger),
		parsers.WithMessageType(cfg.MessageType, cfg.TriggerEvent),
	}
	return parsers.NewSIUParser(append(opts, extra...)...)
}

// inputPath returns the single positional argument.
func inputPath(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", cli.Exit(fmt.Sprintf("usage: siu2json %s [flags] <file>", c.Command.Name), exitInputError)
	}
	return c.Args().First(), nil
}

func newRunID() string {
	return xid.New().String()
}

// nopCloser keeps Close from closing stdout.
type nopCloser struct {
	io.Writer
}
