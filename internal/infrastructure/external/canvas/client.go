// Package canvas implements a Canvas LMS API client.
// This package handles all communication with the Canvas instance hosting
// the learning modules: resolving account names to Canvas user IDs, sending
// conversation messages to participants, and uploading feedback files.
//
// The API is documented at https://canvas.instructure.com/doc/api/index.html.
package canvas

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/demodigi-hub/results-hub/internal/domain/shared"
	"github.com/demodigi-hub/results-hub/pkg/circuitbreaker"
	"github.com/demodigi-hub/results-hub/pkg/logger"
	"github.com/demodigi-hub/results-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the Canvas API client.
type ClientConfig struct {
	// BaseURL is the Canvas instance base URL, e.g. https://af.instructure.com
	BaseURL string

	// Token is the Canvas API access token
	Token string

	// AccountID is the Canvas account whose user listing holds the
	// participants. Almost always 1 on a self-hosted instance.
	AccountID int

	// Timeout is the HTTP request timeout
	Timeout time.Duration

	// RateLimiterConfig for API rate limiting
	RateLimiterConfig RateLimiterConfig

	// Logger for structured logging
	Logger *logger.Logger

	// Debug enables debug logging of every request
	Debug bool
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL, token string) ClientConfig {
	return ClientConfig{
		BaseURL:           strings.TrimRight(baseURL, "/"),
		Token:             token,
		AccountID:         1,
		Timeout:           30 * time.Second,
		RateLimiterConfig: DefaultRateLimiterConfig(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client is the Canvas LMS API client.
//
// Reads (user and folder listings) are retried on transient failures.
// Conversation sends are never retried automatically: a retry after an
// ambiguous failure risks messaging a participant twice.
type Client struct {
	config      ClientConfig
	httpClient  *http.Client
	log         *logger.Logger
	rateLimiter *RateLimiter
	breaker     *circuitbreaker.CircuitBreaker
	retrier     *retry.Retrier
}

// NewClient creates a new Canvas API client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = logger.Default()
	}
	if config.AccountID == 0 {
		config.AccountID = 1
	}
	log := config.Logger.With(logger.Component("canvas"))

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		log:         log,
		rateLimiter: NewRateLimiter(config.RateLimiterConfig),
		breaker: circuitbreaker.CanvasAPIBreaker(func(name string, from, to circuitbreaker.State) {
			log.Warn("circuit breaker state change",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()))
		}),
		retrier: retry.CanvasAPIRetrier(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// USER MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// UserIDMapping fetches the mapping from account names to Canvas user IDs.
//
// The listing also contains synthetic "users" such as 'Outcomes Service API'
// and 'Quizzes.Next Service API', so callers must filter against their own
// participant roster afterwards.
func (c *Client) UserIDMapping(ctx context.Context) (map[string]int, error) {
	users, err := c.ListAccountUsers(ctx)
	if err != nil {
		return nil, err
	}

	mapping := make(map[string]int, len(users))
	for _, u := range users {
		mapping[u.Name] = u.ID
	}
	return mapping, nil
}

// ListAccountUsers fetches all users of the configured account, following
// the Link header pagination until no rel="next" remains.
func (c *Client) ListAccountUsers(ctx context.Context) ([]UserDTO, error) {
	var all []UserDTO

	next := fmt.Sprintf("%s/api/v1/accounts/%d/users?per_page=100", c.config.BaseURL, c.config.AccountID)
	page := 0
	for next != "" {
		page++
		var users []UserDTO
		link, err := c.getPaginated(ctx, next, &users)
		if err != nil {
			return nil, fmt.Errorf("list account users page %d: %w", page, err)
		}
		all = append(all, users...)
		next = link
	}

	c.log.Info("fetched account user listing",
		logger.Int("users", len(all)),
		logger.Int("pages", page))
	return all, nil
}

// getPaginated performs one GET of a paginated collection and returns the
// rel="next" link, or "" on the last page. Retried on transient failures.
func (c *Client) getPaginated(ctx context.Context, rawURL string, result any) (string, error) {
	var next string
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			link, err := c.doGet(ctx, rawURL, result)
			if err != nil {
				return err
			}
			next = link
			return nil
		})
	})
	return next, err
}

// doGet performs a single GET request and decodes the JSON body into result.
// Returns the rel="next" link from the Link header, if any.
func (c *Client) doGet(ctx context.Context, rawURL string, result any) (string, error) {
	if err := c.rateLimiter.Allow(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	c.authorize(req)
	req.Header.Set("Accept", "application/json")

	if c.config.Debug {
		c.log.Debug("canvas api request", logger.String("method", "GET"), logger.String("url", rawURL))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", retry.Retryable(transportError(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", retry.Retryable(fmt.Errorf("read response: %w", err))
	}

	if err := c.checkStatus(resp, body); err != nil {
		return "", err
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return "", retry.Permanent(fmt.Errorf("%w: %v", shared.ErrCanvasInvalidResponse, err))
		}
	}

	return nextLink(resp.Header.Get("Link")), nil
}

// nextLink picks the rel="next" URL out of a Link header.
// The header is a comma-separated list of <url>; rel="..." entries.
func nextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		if !strings.Contains(part, `rel="next"`) {
			continue
		}
		start := strings.Index(part, "<")
		end := strings.Index(part, ">")
		if start >= 0 && end > start {
			return part[start+1 : end]
		}
	}
	return ""
}

// ══════════════════════════════════════════════════════════════════════════════
// CONVERSATIONS
// ══════════════════════════════════════════════════════════════════════════════

// SendMessage sends a conversation message to a single participant.
// Not retried: a duplicate send is worse than a reported failure.
func (c *Client) SendMessage(ctx context.Context, userID int, subject, body string) error {
	payload := url.Values{
		"subject":            {subject},
		"force_new":          {"true"},
		"recipients[]":       {strconv.Itoa(userID)},
		"body":               {body},
		"group_conversation": {"false"},
	}

	if err := c.postConversation(ctx, payload); err != nil {
		return fmt.Errorf("send message to user %d: %w", userID, err)
	}

	c.log.Info("sent conversation message",
		logger.Int("canvas_user_id", userID),
		logger.String("subject", subject))
	return nil
}

// SendFileMessage sends a conversation message with a file attached.
// The file is first uploaded as a conversation attachment in the sender's
// own file area, then referenced by ID in the conversation payload.
func (c *Client) SendFileMessage(ctx context.Context, selfID, targetID int, subject, body, fileName string, contents []byte) error {
	fileID, err := c.UploadConversationAttachment(ctx, selfID, fileName, contents)
	if err != nil {
		return fmt.Errorf("send file message to user %d: %w", targetID, err)
	}

	payload := url.Values{
		"subject":          {subject},
		"force_new":        {"true"},
		"recipients[]":     {strconv.Itoa(targetID)},
		"attachment_ids[]": {strconv.Itoa(fileID)},
		"body":             {body},
		"mode":             {"sync"},
	}

	if err := c.postConversation(ctx, payload); err != nil {
		return fmt.Errorf("send file message to user %d: %w", targetID, err)
	}

	c.log.Info("sent conversation message with attachment",
		logger.Int("canvas_user_id", targetID),
		logger.Int("file_id", fileID),
		logger.String("subject", subject))
	return nil
}

// postConversation posts a form-encoded conversation payload. Canvas signals
// success by returning a JSON array; any JSON object is an error envelope.
func (c *Client) postConversation(ctx context.Context, payload url.Values) error {
	if err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		if err := c.rateLimiter.Allow(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		endpoint := c.config.BaseURL + "/api/v1/conversations"
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(payload.Encode()))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		c.authorize(req)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return transportError(err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if err := c.checkStatus(resp, body); err != nil {
			return err
		}

		trimmed := bytes.TrimLeft(body, " \t\r\n")
		if len(trimmed) == 0 || trimmed[0] != '[' {
			var envelope conversationErrorDTO
			if err := json.Unmarshal(body, &envelope); err == nil {
				return fmt.Errorf("%w: %s", shared.ErrCanvasInvalidResponse, envelope.message())
			}
			return shared.ErrCanvasInvalidResponse
		}
		return nil
	}); err != nil {
		return err
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// FILE UPLOADS
// ══════════════════════════════════════════════════════════════════════════════

// UploadFile uploads a file via the two-step Canvas upload flow, acting as
// the given user: first a POST to uploadPath declaring name and size, which
// returns a one-time upload URL, then a multipart POST of the bytes.
// Returns the Canvas file ID.
func (c *Client) UploadFile(ctx context.Context, uploadPath, fileName string, contents []byte, asUserID int) (int, error) {
	ticket, err := c.requestUploadTicket(ctx, uploadPath, fileName, int64(len(contents)), asUserID)
	if err != nil {
		return 0, fmt.Errorf("upload file %s: %w", fileName, err)
	}

	result, err := c.performUpload(ctx, ticket, fileName, contents)
	if err != nil {
		return 0, fmt.Errorf("upload file %s: %w", fileName, err)
	}

	if result.UploadStatus != "success" {
		return 0, fmt.Errorf("%w: upload status %q", shared.ErrCanvasInvalidResponse, result.UploadStatus)
	}

	c.log.Info("uploaded file",
		logger.String("file", fileName),
		logger.Int("file_id", result.ID))
	return result.ID, nil
}

// UploadConversationAttachment uploads a file into the sender's
// 'my files/conversation attachments' folder, which is where Canvas expects
// conversation attachments to live. Returns the Canvas file ID.
func (c *Client) UploadConversationAttachment(ctx context.Context, selfID int, fileName string, contents []byte) (int, error) {
	folderID, err := c.conversationAttachmentsFolder(ctx, selfID)
	if err != nil {
		return 0, err
	}

	uploadPath := fmt.Sprintf("%s/api/v1/folders/%d/files", c.config.BaseURL, folderID)
	return c.UploadFile(ctx, uploadPath, fileName, contents, selfID)
}

// conversationAttachmentsFolder locates the conversation attachments folder
// in a user's file area.
func (c *Client) conversationAttachmentsFolder(ctx context.Context, userID int) (int, error) {
	var folders []FolderDTO

	next := fmt.Sprintf("%s/api/v1/users/%d/folders?per_page=100", c.config.BaseURL, userID)
	for next != "" {
		var page []FolderDTO
		link, err := c.getPaginated(ctx, next, &page)
		if err != nil {
			return 0, fmt.Errorf("list folders for user %d: %w", userID, err)
		}
		folders = append(folders, page...)
		next = link
	}

	for _, f := range folders {
		if f.FullName == "my files/conversation attachments" {
			return f.ID, nil
		}
	}
	return 0, fmt.Errorf("%w: user %d has no conversation attachments folder", shared.ErrCanvasInvalidResponse, userID)
}

// requestUploadTicket performs step one of the upload flow.
func (c *Client) requestUploadTicket(ctx context.Context, uploadPath, fileName string, size int64, asUserID int) (*FileUploadTicketDTO, error) {
	payload := url.Values{
		"name": {fileName},
		"size": {strconv.FormatInt(size, 10)},
	}
	if asUserID != 0 {
		payload.Set("as_user_id", strconv.Itoa(asUserID))
	}

	var ticket FileUploadTicketDTO
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		if err := c.rateLimiter.Allow(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadPath, strings.NewReader(payload.Encode()))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		c.authorize(req)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return transportError(err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if err := c.checkStatus(resp, body); err != nil {
			return err
		}
		if err := json.Unmarshal(body, &ticket); err != nil {
			return fmt.Errorf("%w: %v", shared.ErrCanvasInvalidResponse, err)
		}
		if ticket.UploadURL == "" {
			return fmt.Errorf("%w: upload ticket carries no upload_url", shared.ErrCanvasInvalidResponse)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

// performUpload performs step two: a multipart POST of the file bytes to the
// one-time upload URL. The ticket's upload_params go in as form fields ahead
// of the file part, as the upload endpoint requires.
func (c *Client) performUpload(ctx context.Context, ticket *FileUploadTicketDTO, fileName string, contents []byte) (*FileUploadResultDTO, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for key, value := range ticket.UploadParams {
		if err := mw.WriteField(key, value); err != nil {
			return nil, fmt.Errorf("write upload param: %w", err)
		}
	}
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(contents); err != nil {
		return nil, fmt.Errorf("write file part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ticket.UploadURL, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	// The upload URL is pre-signed; no Authorization header here.
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := c.checkStatus(resp, body); err != nil {
		return nil, err
	}

	var result FileUploadResultDTO
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrCanvasInvalidResponse, err)
	}
	return &result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST PLUMBING
// ══════════════════════════════════════════════════════════════════════════════

// authorize sets the bearer token header.
func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.config.Token)
}

// transportError classifies a failed round trip. A timeout gets its own
// sentinel so callers can tell a slow Canvas from an unreachable one.
func transportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", shared.ErrCanvasTimeout, err)
	}
	return fmt.Errorf("http request: %w", err)
}

// checkStatus maps non-2xx responses to domain errors.
func (c *Client) checkStatus(resp *http.Response, body []byte) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil

	case resp.StatusCode == http.StatusForbidden && isRateLimitBody(body):
		// Canvas reports throttling as 403 with a 'Rate Limit Exceeded' body.
		retryAfter := 60 * time.Second
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		c.rateLimiter.RecordRateLimitHit(retryAfter)
		return retry.Retryable(fmt.Errorf("%w: retry after %s", shared.ErrCanvasRateLimited, retryAfter))

	case resp.StatusCode == http.StatusTooManyRequests:
		c.rateLimiter.RecordRateLimitHit(0)
		return retry.Retryable(shared.ErrCanvasRateLimited)

	case resp.StatusCode >= 500:
		return retry.Retryable(fmt.Errorf("%w: status %d", shared.ErrCanvasUnavailable, resp.StatusCode))

	default:
		return retry.Permanent(fmt.Errorf("%w: status %d: %s", shared.ErrCanvasInvalidResponse, resp.StatusCode, truncate(body, 200)))
	}
}

func isRateLimitBody(body []byte) bool {
	return bytes.Contains(bytes.ToLower(body), []byte("rate limit exceeded"))
}

func truncate(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH AND STATUS
// ══════════════════════════════════════════════════════════════════════════════

// ClientStatus is a snapshot of the client's protective machinery.
type ClientStatus struct {
	RateLimiter   RateLimiterStatus
	BreakerState  circuitbreaker.State
	BreakerCounts circuitbreaker.Counts
}

// Status returns the current status of the client.
func (c *Client) Status() ClientStatus {
	return ClientStatus{
		RateLimiter:   c.rateLimiter.Status(),
		BreakerState:  c.breaker.State(),
		BreakerCounts: c.breaker.Counts(),
	}
}

// Reset resets the rate limiter and circuit breaker.
func (c *Client) Reset() {
	c.rateLimiter.Reset()
	c.breaker.Reset()
}

// IsHealthy checks if the Canvas API answers an authenticated request.
func (c *Client) IsHealthy(ctx context.Context) bool {
	var self UserDTO
	_, err := c.doGet(ctx, c.config.BaseURL+"/api/v1/users/self", &self)
	return err == nil
}
