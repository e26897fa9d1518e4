// Package main is the entry point for account provisioning.
//
// One invocation generates a batch of pseudonymous participant accounts:
// a typeable lowercase ID and a random initial password each. Three files
// land in the output directory:
//
//   - accounts.csv: ID, initial password, bcrypt hash (for the operator who
//     creates the accounts on the learning platform)
//   - ids.json: the ID list consumed by the preprocessing pipeline
//   - ids.txt: the same list one ID per line
//
// accounts.csv holds cleartext initial passwords and must be handled
// accordingly.
package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/demodigi-hub/results-hub/config"
	"github.com/demodigi-hub/results-hub/internal/application/command"
	"github.com/demodigi-hub/results-hub/internal/infrastructure/export"
	"github.com/demodigi-hub/results-hub/pkg/logger"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	count, err := strconv.Atoi(os.Getenv("PROVISION_COUNT"))
	if err != nil || count <= 0 {
		return fmt.Errorf("PROVISION_COUNT must be a positive integer")
	}
	prefix := os.Getenv("PROVISION_PREFIX")

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	log := logger.New(opts)
	log.Info("provisioning accounts",
		logger.Int("count", count),
		logger.String("prefix", prefix),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. GENERATE
	// ─────────────────────────────────────────────────────────────────────────
	handler := command.NewProvisionAccountsHandler(0, log)
	result, err := handler.Handle(ctx, command.ProvisionAccountsCommand{
		Count:  count,
		Prefix: prefix,
	})
	if err != nil {
		return fmt.Errorf("provisioning failed: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. WRITE ARTIFACTS
	// ─────────────────────────────────────────────────────────────────────────
	if err := os.MkdirAll(cfg.Export.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := writeFile(filepath.Join(cfg.Export.OutputDir, "accounts.csv"), func(w io.Writer) error {
		return writeAccountsCSV(w, result.Accounts)
	}); err != nil {
		return fmt.Errorf("failed to write accounts.csv: %w", err)
	}

	ids := result.IDs()
	if err := writeFile(filepath.Join(cfg.Export.OutputDir, "ids.json"), func(w io.Writer) error {
		return export.WriteIDs(w, ids)
	}); err != nil {
		return fmt.Errorf("failed to write ids.json: %w", err)
	}
	if err := writeFile(filepath.Join(cfg.Export.OutputDir, "ids.txt"), func(w io.Writer) error {
		for _, id := range ids {
			if _, err := fmt.Fprintln(w, id); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return fmt.Errorf("failed to write ids.txt: %w", err)
	}

	log.Info("accounts written", logger.String("output_dir", cfg.Export.OutputDir))
	return nil
}

func writeAccountsCSV(w io.Writer, accounts []command.Account) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "password", "password_hash"}); err != nil {
		return err
	}
	for _, a := range accounts {
		if err := cw.Write([]string{a.ID, a.Password, a.PasswordHash}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
