package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"github.com/oarkflow/hl7siu/pkg/adapters/hl7adapter"
	"github.com/oarkflow/hl7siu/pkg/config"
	"github.com/oarkflow/hl7siu/pkg/metrics"
	"github.com/oarkflow/hl7siu/pkg/parsers"
	"github.com/oarkflow/hl7siu/pkg/utils/fileutil"
)

// parseSummary counts the outcomes of one run.
type parseSummary struct {
	total  int
	failed int
}

func (s *parseSummary) add(r parsers.ParseResult) {
	s.total++
	if !r.OK() {
		s.failed++
	}
}

func runParse(c *cli.Context) error {
	path, err := inputPath(c)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitInputError)
	}
	format := strings.ToLower(c.String("format"))
	if format != "json" && format != "xml" {
		return cli.Exit(fmt.Sprintf("unsupported format %q", format), exitInputError)
	}
	if format == "xml" && cfg.Stream {
		return cli.Exit("xml output cannot be streamed", exitInputError)
	}

	runID := newRunID()
	logger := newLogger(cfg, c.App.ErrWriter)
	var opts []parsers.SIUOption
	registry := prometheus.NewRegistry()
	if cfg.MetricsFile != "" {
		opts = append(opts, parsers.WithObserver(metrics.NewParserMetrics(registry)))
	}
	parser := newParser(cfg, logger, opts...)

	start := time.Now()
	var summary parseSummary
	if cfg.Stream {
		summary, err = streamFile(c, parser, path, cfg)
	} else {
		summary, err = parseFile(c, parser, path, cfg, format)
	}
	if cfg.MetricsFile != "" {
		if merr := metrics.WriteTextfile(cfg.MetricsFile, registry); merr != nil {
			logger.Warn().Err(merr).Str("path", cfg.MetricsFile).Msg("failed to write metrics")
		}
	}
	if err != nil {
		logger.Error().Err(err).Str("run_id", runID).Str("path", path).Msg("parse failed")
		return cli.Exit(err.Error(), exitInputError)
	}
	logger.Info().
		Str("run_id", runID).
		Str("path", path).
		Bool("strict", parser.Strict()).
		Int("messages", summary.total).
		Int("failed", summary.failed).
		Dur("elapsed", time.Since(start)).
		Msg("parse finished")

	if summary.total == 0 {
		return cli.Exit(fmt.Sprintf("no messages found in %s", path), exitInputError)
	}
	if summary.failed == summary.total {
		return cli.Exit(fmt.Sprintf("all %d message(s) failed to parse", summary.total), exitAllFailed)
	}
	return nil
}

func parseFile(c *cli.Context, parser *parsers.SIUParser, path string, cfg *config.ParserConfig, format string) (parseSummary, error) {
	var summary parseSummary
	text, err := hl7adapter.ReadFile(path)
	if err != nil {
		return summary, err
	}
	results, err := parser.ParseString(text)
	if err != nil {
		return summary, err
	}
	for _, r := range results {
		summary.add(r)
	}
	if len(results) == 0 {
		return summary, nil
	}

	var data []byte
	if format == "xml" {
		data, err = parsers.RenderXML(results)
	} else {
		data, err = parsers.Render(results, parsers.RenderOptions{Compact: cfg.Compact, Verbose: cfg.Verbose})
	}
	if err != nil {
		return summary, err
	}
	if len(data) > 0 && data[len(data)-1] != '\n' {
		data = append(data, '\n')
	}
	if cfg.Output == "" {
		_, err = c.App.Writer.Write(data)
		return summary, err
	}
	return summary, os.WriteFile(cfg.Output, data, 0o644)
}

// streamFile pulls one result at a time. Output goes to stdout as JSON Lines
// or to cfg.Output as a JSON array grown one element per message.
func streamFile(c *cli.Context, parser *parsers.SIUParser, path string, cfg *config.ParserConfig) (parseSummary, error) {
	var summary parseSummary
	rc, err := hl7adapter.Open(path)
	if err != nil {
		return summary, err
	}
	defer rc.Close()

	emit, closeOut, err := streamSink(c.App.Writer, cfg)
	if err != nil {
		return summary, err
	}
	stream := parser.Stream(rc)
	for stream.Next() {
		r := stream.Result()
		summary.add(r)
		if err := emit(r); err != nil {
			_ = closeOut()
			return summary, err
		}
	}
	if err := closeOut(); err != nil {
		return summary, err
	}
	return summary, stream.Err()
}

func streamSink(w io.Writer, cfg *config.ParserConfig) (func(parsers.ParseResult) error, func() error, error) {
	if cfg.Output == "" {
		emit := func(r parsers.ParseResult) error {
			line, err := parsers.RenderLine(r, cfg.Verbose)
			if err != nil || line == nil {
				return err
			}
			_, err = w.Write(line)
			return err
		}
		return emit, func() error { return nil }, nil
	}
	appender, err := fileutil.NewJSONAppender[any](cfg.Output, fileutil.WithTruncate[any]())
	if err != nil {
		return nil, nil, fmt.Errorf("open output %s: %w", cfg.Output, err)
	}
	emit := func(r parsers.ParseResult) error {
		rec := parsers.Record(r, cfg.Verbose)
		if rec == nil {
			return nil
		}
		return appender.Append(rec)
	}
	return emit, appender.Close, nil
}
