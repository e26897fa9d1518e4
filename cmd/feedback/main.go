// Package main is the entry point for the feedback sender.
//
// One invocation reads a directory of per-participant message files (one
// file per participant, file name = account name), maps each account name
// to a Canvas user ID and delivers the messages as Canvas conversations,
// optionally with a per-participant attachment such as a results plot.
//
// Delivery is deliberately conservative: sends are never retried, and when
// Redis is available a distributed lock guards against two operators
// running the same batch at once.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	// Application layer
	"github.com/demodigi-hub/results-hub/internal/application/command"

	// Domain layer
	"github.com/demodigi-hub/results-hub/internal/domain/shared"

	// Infrastructure layer
	"github.com/demodigi-hub/results-hub/internal/infrastructure/external/canvas"
	"github.com/demodigi-hub/results-hub/internal/infrastructure/persistence/redis"

	// Packages
	"github.com/demodigi-hub/results-hub/config"
	"github.com/demodigi-hub/results-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// BATCH CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// batchConfig holds the invocation-specific settings that do not belong in
// the shared application config: which messages to send, under what subject.
type batchConfig struct {
	// MessagesDir holds one message file per participant.
	MessagesDir string

	// AttachmentsDir optionally holds one attachment per participant,
	// matched on the file name without extension.
	AttachmentsDir string

	// Subject is the conversation subject line.
	Subject string

	// RunID keys the send lock so a batch cannot be double-sent.
	RunID string
}

func loadBatchConfig() (batchConfig, error) {
	cfg := batchConfig{
		MessagesDir:    os.Getenv("FEEDBACK_MESSAGES_DIR"),
		AttachmentsDir: os.Getenv("FEEDBACK_ATTACHMENTS_DIR"),
		Subject:        os.Getenv("FEEDBACK_SUBJECT"),
		RunID:          os.Getenv("FEEDBACK_RUN_ID"),
	}
	if cfg.MessagesDir == "" {
		return cfg, fmt.Errorf("FEEDBACK_MESSAGES_DIR is required")
	}
	if strings.TrimSpace(cfg.Subject) == "" {
		return cfg, fmt.Errorf("FEEDBACK_SUBJECT is required")
	}
	return cfg, nil
}

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
	if cfg.Canvas.BaseURL == "" {
		return fmt.Errorf("CANVAS_BASE_URL is required for the feedback sender")
	}
	batch, err := loadBatchConfig()
	if err != nil {
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting feedback batch",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("messages_dir", batch.MessagesDir),
		logger.String("subject", batch.Subject),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. CANVAS CLIENT
	// ─────────────────────────────────────────────────────────────────────────
	clientCfg := canvas.DefaultClientConfig(cfg.Canvas.BaseURL, cfg.Canvas.Token)
	clientCfg.AccountID = cfg.Canvas.AccountID
	clientCfg.Timeout = cfg.Canvas.RequestTimeout
	clientCfg.RateLimiterConfig.RequestsPerSecond = cfg.Canvas.RateLimit
	clientCfg.RateLimiterConfig.BurstSize = cfg.Canvas.RateLimitBurst
	clientCfg.Logger = log
	clientCfg.Debug = cfg.App.Debug
	client := canvas.NewClient(clientCfg)

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REDIS (optional: user-mapping cache and send lock)
	// ─────────────────────────────────────────────────────────────────────────
	var reportCache *redis.ReportCache
	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis...")
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB

		cache, err := redis.NewCache(redisCfg)
		if err != nil {
			log.Warn("failed to connect to Redis, cache and send lock disabled", logger.Err(err))
		} else {
			defer cache.Close()
			reportCache = redis.NewReportCache(cache)
			log.Info("Redis connection established")
		}
	}

	if reportCache != nil && batch.RunID != "" {
		acquired, err := reportCache.AcquireSendLock(ctx, batch.RunID)
		if err != nil {
			return fmt.Errorf("failed to acquire send lock: %w", err)
		}
		if !acquired {
			return fmt.Errorf("%w: feedback batch for run %s is already in flight", shared.ErrAlreadyProcessed, batch.RunID)
		}
		defer func() {
			if err := reportCache.ReleaseSendLock(context.Background(), batch.RunID); err != nil {
				log.Warn("failed to release send lock", logger.Err(err))
			}
		}()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ASSEMBLE THE BATCH
	// ─────────────────────────────────────────────────────────────────────────
	messages, err := readMessages(batch.MessagesDir, batch.AttachmentsDir)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return fmt.Errorf("no message files found in %s", batch.MessagesDir)
	}
	log.Info("batch assembled", logger.Int("messages", len(messages)))

	// ─────────────────────────────────────────────────────────────────────────
	// 6. SEND
	// ─────────────────────────────────────────────────────────────────────────
	var mappingCache command.UserMappingCache
	if reportCache != nil {
		mappingCache = reportCache
	}
	handler := command.NewSendFeedbackHandler(client, mappingCache, cfg.Canvas.AccountID, log)
	result, err := handler.Handle(ctx, command.SendFeedbackCommand{
		Subject:  batch.Subject,
		Messages: messages,
		SenderID: cfg.Canvas.SenderID,
	})
	if err != nil {
		return fmt.Errorf("feedback batch failed: %w", err)
	}

	log.Info("feedback batch complete",
		logger.Int("sent", result.Sent),
		logger.Int("unmapped", len(result.Unmapped)),
		logger.Int("failed", len(result.Failures)),
	)
	for _, f := range result.Failures {
		log.Error("delivery failed", logger.ParticipantID(f.ParticipantID), logger.Err(f.Err))
	}
	if result.Sent == 0 {
		return fmt.Errorf("no messages were delivered")
	}
	return nil
}

// readMessages builds one FeedbackMessage per file in messagesDir. The file
// name without extension is the participant's account name. When
// attachmentsDir is set, a file there with the same base name is attached.
func readMessages(messagesDir, attachmentsDir string) ([]command.FeedbackMessage, error) {
	entries, err := os.ReadDir(messagesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read messages directory: %w", err)
	}

	attachments := map[string]string{}
	if attachmentsDir != "" {
		attEntries, err := os.ReadDir(attachmentsDir)
		if err != nil {
			return nil, fmt.Errorf("failed to read attachments directory: %w", err)
		}
		for _, e := range attEntries {
			if e.IsDir() {
				continue
			}
			attachments[baseName(e.Name())] = e.Name()
		}
	}

	var messages []command.FeedbackMessage
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		body, err := os.ReadFile(filepath.Join(messagesDir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read message file %s: %w", e.Name(), err)
		}
		msg := command.FeedbackMessage{
			ParticipantID: baseName(e.Name()),
			Body:          string(body),
		}
		if name, ok := attachments[msg.ParticipantID]; ok {
			contents, err := os.ReadFile(filepath.Join(attachmentsDir, name))
			if err != nil {
				return nil, fmt.Errorf("failed to read attachment %s: %w", name, err)
			}
			msg.AttachmentName = name
			msg.Attachment = contents
		}
		messages = append(messages, msg)
	}

	// ReadDir sorts by file name already, but the contract matters here:
	// delivery order is the lexical order of account names.
	sort.Slice(messages, func(i, j int) bool {
		return messages[i].ParticipantID < messages[j].ParticipantID
	})
	return messages, nil
}

func baseName(file string) string {
	return strings.TrimSuffix(file, filepath.Ext(file))
}

func setupLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	if cfg.App.Debug {
		opts.Level = logger.LevelDebug
	}
	return logger.New(opts)
}
