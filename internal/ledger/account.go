package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukerupert/pointledger/internal/model"
)

const accountCols = `id, email, password_hash, balance, active, is_admin, created_at`

// NewAccount holds the fields supplied at registration.
type NewAccount struct {
	Email        string
	PasswordHash string
	Balance      int
	IsAdmin      bool
}

// AccountStore owns account identity and the point balance. It knows nothing
// about why a balance moves.
type AccountStore struct {
	logger *slog.Logger
}

func NewAccountStore(logger *slog.Logger) *AccountStore {
	return &AccountStore{logger: logger}
}

// NormalizeEmail trims whitespace and lower-cases the domain part.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return email
	}
	return email[:at+1] + strings.ToLower(email[at+1:])
}

func (s *AccountStore) Create(ctx context.Context, q Querier, na NewAccount) (*model.Account, error) {
	email := NormalizeEmail(na.Email)
	if email == "" {
		return nil, invalid("email is required")
	}
	if na.Balance < 0 {
		return nil, invalid("initial balance must not be negative")
	}

	var id int64
	err := get(ctx, q, &id,
		`INSERT INTO accounts (email, password_hash, balance, is_admin) VALUES (?, ?, ?, ?) RETURNING id`,
		email, na.PasswordHash, na.Balance, na.IsAdmin,
	)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: account %s", ErrConflict, email)
	}
	if err != nil {
		return nil, persistence("insert account", err)
	}

	s.logger.Info("account created", "account_id", id, "email", email, "admin", na.IsAdmin)
	return s.GetByID(ctx, q, id)
}

func (s *AccountStore) GetByID(ctx context.Context, q Querier, id int64) (*model.Account, error) {
	var a model.Account
	err := get(ctx, q, &a, `SELECT `+accountCols+` FROM accounts WHERE id = ?`, id)
	if isNoRows(err) {
		return nil, fmt.Errorf("%w: account %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, persistence("get account", err)
	}
	return &a, nil
}

func (s *AccountStore) GetByEmail(ctx context.Context, q Querier, email string) (*model.Account, error) {
	email = NormalizeEmail(email)
	var a model.Account
	err := get(ctx, q, &a, `SELECT `+accountCols+` FROM accounts WHERE email = ?`, email)
	if isNoRows(err) {
		return nil, fmt.Errorf("%w: account %s", ErrNotFound, email)
	}
	if err != nil {
		return nil, persistence("get account by email", err)
	}
	return &a, nil
}

// Lock reads the account row and holds it exclusively until q's transaction ends.
func (s *AccountStore) Lock(ctx context.Context, q Querier, id int64) (*model.Account, error) {
	var a model.Account
	err := get(ctx, q, &a, `SELECT `+accountCols+` FROM accounts WHERE id = ?`+forUpdate(q), id)
	if isNoRows(err) {
		return nil, fmt.Errorf("%w: account %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, persistence("lock account", err)
	}
	return &a, nil
}

// Credit adds amount to the balance in a single atomic increment and returns
// the new balance.
func (s *AccountStore) Credit(ctx context.Context, q Querier, id int64, amount int) (int, error) {
	if amount <= 0 {
		return 0, invalid("credit amount must be positive, got %d", amount)
	}

	var balance int
	err := get(ctx, q, &balance,
		`UPDATE accounts SET balance = balance + ? WHERE id = ? RETURNING balance`,
		amount, id,
	)
	if isNoRows(err) {
		return 0, fmt.Errorf("%w: account %d", ErrNotFound, id)
	}
	if err != nil {
		return 0, persistence("credit account", err)
	}
	return balance, nil
}

// Debit subtracts amount from the balance and returns the new balance. The
// row is locked for the check; the update re-checks so a debit can never
// drive the balance negative, even outside a transaction.
func (s *AccountStore) Debit(ctx context.Context, q Querier, id int64, amount int) (int, error) {
	if amount <= 0 {
		return 0, invalid("debit amount must be positive, got %d", amount)
	}

	a, err := s.Lock(ctx, q, id)
	if err != nil {
		return 0, err
	}
	if a.Balance < amount {
		return 0, fmt.Errorf("%w: account %d has %d, needs %d", ErrInsufficientFunds, id, a.Balance, amount)
	}

	var balance int
	err = get(ctx, q, &balance,
		`UPDATE accounts SET balance = balance - ? WHERE id = ? AND balance >= ? RETURNING balance`,
		amount, id, amount,
	)
	if isNoRows(err) {
		return 0, fmt.Errorf("%w: account %d needs %d", ErrInsufficientFunds, id, amount)
	}
	if err != nil {
		return 0, persistence("debit account", err)
	}
	return balance, nil
}

// SetBalance overwrites the balance under the account lock.
func (s *AccountStore) SetBalance(ctx context.Context, q Querier, id int64, balance int) (int, error) {
	if balance < 0 {
		return 0, invalid("points cannot be negative")
	}
	if _, err := s.Lock(ctx, q, id); err != nil {
		return 0, err
	}
	if _, err := exec(ctx, q, `UPDATE accounts SET balance = ? WHERE id = ?`, balance, id); err != nil {
		return 0, persistence("set balance", err)
	}
	return balance, nil
}

// SetActive toggles soft deactivation. Accounts are never deleted.
func (s *AccountStore) SetActive(ctx context.Context, q Querier, id int64, active bool) error {
	n, err := exec(ctx, q, `UPDATE accounts SET active = ? WHERE id = ?`, active, id)
	if err != nil {
		return persistence("set active", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: account %d", ErrNotFound, id)
	}
	return nil
}

func (s *AccountStore) SetAdmin(ctx context.Context, q Querier, id int64, admin bool) error {
	n, err := exec(ctx, q, `UPDATE accounts SET is_admin = ? WHERE id = ?`, admin, id)
	if err != nil {
		return persistence("set admin", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: account %d", ErrNotFound, id)
	}
	return nil
}
