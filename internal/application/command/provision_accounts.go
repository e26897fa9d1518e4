package command

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/demodigi-hub/results-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROVISION ACCOUNTS COMMAND
// Generates pseudonymous participant accounts ahead of a module round.
// The account ID is the only identifier this system ever sees for a
// participant; it is handed out on paper and never linked to a person
// number on our side.
// ══════════════════════════════════════════════════════════════════════════════

// ProvisionAccountsCommand contains the parameters for account generation.
type ProvisionAccountsCommand struct {
	// Count is the number of accounts to generate.
	Count int

	// Prefix is prepended to each account ID, e.g. a module round code.
	Prefix string
}

// Validate validates the command.
func (c ProvisionAccountsCommand) Validate() error {
	if c.Count <= 0 {
		return errors.New("provision_accounts: count must be positive")
	}
	if c.Count > 100000 {
		return errors.New("provision_accounts: count is implausibly large")
	}
	return nil
}

// Account is one provisioned participant account. Password is the
// plaintext handed to the participant; only the hash should be stored.
type Account struct {
	ID           string
	Password     string
	PasswordHash string
}

// ProvisionAccountsResult contains the generated accounts.
type ProvisionAccountsResult struct {
	Accounts []Account
}

// IDs returns the account IDs sorted lexicographically, the order ID
// lists are published in.
func (r *ProvisionAccountsResult) IDs() []string {
	ids := make([]string, len(r.Accounts))
	for i, a := range r.Accounts {
		ids[i] = a.ID
	}
	sort.Strings(ids)
	return ids
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// ProvisionAccountsHandler handles the ProvisionAccountsCommand.
type ProvisionAccountsHandler struct {
	bcryptCost int
	log        *logger.Logger
}

// NewProvisionAccountsHandler creates a new ProvisionAccountsHandler.
// bcryptCost of 0 falls back to the bcrypt default.
func NewProvisionAccountsHandler(bcryptCost int, log *logger.Logger) *ProvisionAccountsHandler {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ProvisionAccountsHandler{
		bcryptCost: bcryptCost,
		log:        log.With(logger.Component("provision_accounts")),
	}
}

// Handle generates the accounts. IDs are lowercase so they round-trip
// through the case-folding the rest of the pipeline applies.
func (h *ProvisionAccountsHandler) Handle(ctx context.Context, cmd ProvisionAccountsCommand) (*ProvisionAccountsResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	result := &ProvisionAccountsResult{Accounts: make([]Account, 0, cmd.Count)}
	seen := make(map[string]bool, cmd.Count)

	for len(result.Accounts) < cmd.Count {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		id := newAccountID(cmd.Prefix)
		if seen[id] {
			continue
		}
		seen[id] = true

		password, err := newPassword()
		if err != nil {
			return nil, fmt.Errorf("provision_accounts: generate password: %w", err)
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(password), h.bcryptCost)
		if err != nil {
			return nil, fmt.Errorf("provision_accounts: hash password: %w", err)
		}

		result.Accounts = append(result.Accounts, Account{
			ID:           id,
			Password:     password,
			PasswordHash: string(hash),
		})
	}

	h.log.Info("provisioned accounts", logger.Int("count", len(result.Accounts)))
	return result, nil
}

// newAccountID builds a lowercase pseudonymous ID. The UUID is truncated:
// eight hex characters are plenty for collision-free IDs in the hundreds
// and keep the ID typeable on a login form.
func newAccountID(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	if prefix == "" {
		return id
	}
	return strings.ToLower(prefix) + "_" + id
}

// newPassword generates a random, typeable password.
func newPassword() (string, error) {
	raw := make([]byte, 10)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw)), nil
}
