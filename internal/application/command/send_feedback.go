package command

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/demodigi-hub/results-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SEND FEEDBACK COMMAND
// Sends each participant a personal message about their module results via
// the Canvas conversations API.
// ══════════════════════════════════════════════════════════════════════════════

// FeedbackMessage is one participant's message.
type FeedbackMessage struct {
	// ParticipantID is the account name on the Canvas side.
	ParticipantID string

	// Body is the message text.
	Body string

	// AttachmentName and Attachment optionally add a file, e.g. a
	// per-participant results plot. Ignored when Attachment is nil.
	AttachmentName string
	Attachment     []byte
}

// SendFeedbackCommand contains the batch to send.
type SendFeedbackCommand struct {
	// Subject is the conversation subject line, shared by the batch.
	Subject string

	// Messages holds one entry per participant.
	Messages []FeedbackMessage

	// SenderID is the Canvas user ID whose file area holds attachments.
	// Only needed when any message carries an attachment.
	SenderID int
}

// Validate validates the command.
func (c SendFeedbackCommand) Validate() error {
	if strings.TrimSpace(c.Subject) == "" {
		return errors.New("send_feedback: subject must not be empty")
	}
	if len(c.Messages) == 0 {
		return errors.New("send_feedback: no messages to send")
	}
	for _, m := range c.Messages {
		if m.Attachment != nil && c.SenderID == 0 {
			return errors.New("send_feedback: attachments require a sender ID")
		}
	}
	return nil
}

// SendFailure records one participant whose message could not be sent.
type SendFailure struct {
	ParticipantID string
	Err           error
}

// SendFeedbackResult contains the outcome of one batch send.
type SendFeedbackResult struct {
	// Sent counts successfully delivered messages.
	Sent int

	// Unmapped lists participants with no Canvas account, sorted by the
	// order they appeared in the batch. Nothing was sent to them.
	Unmapped []string

	// Failures lists participants whose send failed. The batch continues
	// past individual failures; a half-delivered batch plus a failure
	// list beats aborting and double-messaging on rerun.
	Failures []SendFailure
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES (Interfaces)
// ══════════════════════════════════════════════════════════════════════════════

// CanvasMessenger is the slice of the Canvas client the sender needs.
type CanvasMessenger interface {
	// UserIDMapping maps account names to Canvas user IDs.
	UserIDMapping(ctx context.Context) (map[string]int, error)

	// SendMessage sends a plain conversation message.
	SendMessage(ctx context.Context, userID int, subject, body string) error

	// SendFileMessage sends a message with a file attached.
	SendFileMessage(ctx context.Context, selfID, targetID int, subject, body, fileName string, contents []byte) error
}

// UserMappingCache caches the Canvas user mapping between runs.
// Optional; a nil cache just refetches the listing.
type UserMappingCache interface {
	GetCanvasUserMapping(ctx context.Context, accountID int) (map[string]int, error)
	SetCanvasUserMapping(ctx context.Context, accountID int, mapping map[string]int) error
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// SendFeedbackHandler handles the SendFeedbackCommand.
type SendFeedbackHandler struct {
	client    CanvasMessenger
	cache     UserMappingCache
	accountID int
	log       *logger.Logger
}

// NewSendFeedbackHandler creates a new SendFeedbackHandler.
// cache may be nil.
func NewSendFeedbackHandler(client CanvasMessenger, cache UserMappingCache, accountID int, log *logger.Logger) *SendFeedbackHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &SendFeedbackHandler{
		client:    client,
		cache:     cache,
		accountID: accountID,
		log:       log.With(logger.Component("send_feedback")),
	}
}

// Handle sends the batch. Participant IDs are matched against Canvas
// account names case-insensitively, since the roster is case-folded but
// Canvas preserves whatever case the accounts were created with.
func (h *SendFeedbackHandler) Handle(ctx context.Context, cmd SendFeedbackCommand) (*SendFeedbackResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	mapping, err := h.userMapping(ctx)
	if err != nil {
		return nil, fmt.Errorf("send_feedback: fetch user mapping: %w", err)
	}

	folded := make(map[string]int, len(mapping))
	for name, id := range mapping {
		folded[strings.ToLower(name)] = id
	}

	result := &SendFeedbackResult{}
	for _, msg := range cmd.Messages {
		userID, ok := folded[strings.ToLower(msg.ParticipantID)]
		if !ok {
			result.Unmapped = append(result.Unmapped, msg.ParticipantID)
			h.log.Warn("participant has no Canvas account", logger.ParticipantID(msg.ParticipantID))
			continue
		}

		if msg.Attachment != nil {
			err = h.client.SendFileMessage(ctx, cmd.SenderID, userID, cmd.Subject, msg.Body, msg.AttachmentName, msg.Attachment)
		} else {
			err = h.client.SendMessage(ctx, userID, cmd.Subject, msg.Body)
		}
		if err != nil {
			result.Failures = append(result.Failures, SendFailure{ParticipantID: msg.ParticipantID, Err: err})
			h.log.Error("failed to send feedback",
				logger.ParticipantID(msg.ParticipantID),
				logger.Err(err))
			continue
		}
		result.Sent++
	}

	h.log.Info("feedback batch complete",
		logger.Int("sent", result.Sent),
		logger.Int("unmapped", len(result.Unmapped)),
		logger.Int("failed", len(result.Failures)))
	return result, nil
}

// userMapping returns the account-name-to-user-ID mapping, from cache
// when possible.
func (h *SendFeedbackHandler) userMapping(ctx context.Context) (map[string]int, error) {
	if h.cache != nil {
		if mapping, err := h.cache.GetCanvasUserMapping(ctx, h.accountID); err == nil && len(mapping) > 0 {
			return mapping, nil
		}
	}

	mapping, err := h.client.UserIDMapping(ctx)
	if err != nil {
		return nil, err
	}

	if h.cache != nil {
		if err := h.cache.SetCanvasUserMapping(ctx, h.accountID, mapping); err != nil {
			h.log.Warn("failed to cache user mapping", logger.Err(err))
		}
	}
	return mapping, nil
}
