package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/oarkflow/hl7siu/pkg/adapters"
	"github.com/oarkflow/hl7siu/pkg/adapters/hl7adapter"
	"github.com/oarkflow/hl7siu/pkg/contracts"
	"github.com/oarkflow/hl7siu/pkg/transformers"
	"github.com/oarkflow/hl7siu/pkg/utils"
)

const fieldRunID = "run_id"

// recordColumns is the CSV layout of the records command.
var recordColumns = []string{
	fieldRunID,
	hl7adapter.FieldSourcePath,
	hl7adapter.FieldMessageIndex,
	"appointment_id",
	"appointment_datetime",
	"patient_id",
	"patient_first_name",
	"patient_last_name",
	"patient_dob",
	"patient_gender",
	"provider_id",
	"provider_name",
	"location",
	"reason",
	"message_control_id",
	"message_datetime",
	"parse_error",
}

func runRecords(c *cli.Context) error {
	path, err := inputPath(c)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitInputError)
	}
	format := strings.ToLower(c.String("format"))
	runID := newRunID()
	logger := newLogger(cfg, c.App.ErrWriter)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := adapters.NewSource("hl7", path, logger)
	if err != nil {
		return cli.Exit(err.Error(), exitInputError)
	}
	if err := src.Setup(ctx); err != nil {
		return cli.Exit(err.Error(), exitInputError)
	}
	defer src.Close()

	var w io.Writer = nopCloser{c.App.Writer}
	if cfg.Output != "" {
		f, err := os.Create(cfg.Output)
		if err != nil {
			return cli.Exit(fmt.Sprintf("create output %s: %v", cfg.Output, err), exitInputError)
		}
		w = f
	}
	loader, err := openLoader(ctx, format, w)
	if err != nil {
		return cli.Exit(err.Error(), exitInputError)
	}
	defer loader.Close()

	ch, err := src.Extract(ctx)
	if err != nil {
		return cli.Exit(err.Error(), exitInputError)
	}
	tr := transformers.NewSIUTransformer(newParser(cfg, logger), transformers.SIUTransformerOptions{Flatten: true})
	total, failed, err := pipeRecords(ctx, ch, tr, loader, runID, c.Bool("keep-raw"))
	if err == nil {
		err = contracts.StreamErr(src)
	}
	if err != nil {
		logger.Error().Err(err).Str("run_id", runID).Str("path", path).Int("messages", total).Msg("records failed")
		return cli.Exit(err.Error(), exitInputError)
	}
	logger.Info().
		Str("run_id", runID).
		Str("path", path).
		Int("messages", total).
		Int("failed", failed).
		Msg("records finished")

	if total == 0 {
		return cli.Exit(fmt.Sprintf("no messages found in %s", path), exitInputError)
	}
	if failed == total {
		return cli.Exit(fmt.Sprintf("all %d message(s) failed to parse", total), exitAllFailed)
	}
	return nil
}

// openLoader builds and sets up the loader for w. w is closed when either
// step fails, since the caller only defers loader.Close on success.
func openLoader(ctx context.Context, format string, w io.Writer) (contracts.Loader, error) {
	loader, err := adapters.NewLoader(format, w, recordColumns...)
	if err == nil {
		err = loader.Setup(ctx)
	}
	if err != nil {
		if closer, ok := w.(io.Closer); ok {
			_ = closer.Close()
		}
		return nil, err
	}
	return loader, nil
}

func pipeRecords(ctx context.Context, ch <-chan utils.Record, tr *transformers.SIUTransformer, loader contracts.Loader, runID string, keepRaw bool) (total, failed int, err error) {
	for rec := range ch {
		out, err := tr.Transform(ctx, rec)
		if err != nil {
			return total, failed, err
		}
		total++
		if _, bad := out["parse_error"]; bad {
			failed++
		}
		out[fieldRunID] = runID
		if !keepRaw {
			delete(out, hl7adapter.FieldRawMessage)
		}
		if err := loader.StoreSingle(ctx, out); err != nil {
			return total, failed, err
		}
	}
	return total, failed, ctx.Err()
}
