package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/dukerupert/pointledger/internal/metrics"
	"github.com/dukerupert/pointledger/internal/model"
)

const redemptionCols = `r.id, r.account_id, a.email AS account_email, r.reward_name, r.cost,
	r.approved, r.deducted, r.requested_at, r.approved_at, r.approved_by`

const redemptionFrom = ` FROM redemption_requests r JOIN accounts a ON a.id = r.account_id`

// ApproveResult is returned by a successful Approve.
type ApproveResult struct {
	Request *model.RedemptionRequest
	Balance int
}

// ApproveOutcome reports one element of a bulk approval.
type ApproveOutcome struct {
	ID     int64
	Result *ApproveResult
	Err    error
}

// RedemptionWorkflow moves redemption requests from pending to approved,
// debiting the account exactly once per request.
type RedemptionWorkflow struct {
	db       *sqlx.DB
	accounts *AccountStore
	logger   *slog.Logger
}

func NewRedemptionWorkflow(db *sqlx.DB, accounts *AccountStore, logger *slog.Logger) *RedemptionWorkflow {
	return &RedemptionWorkflow{db: db, accounts: accounts, logger: logger}
}

// Request records a pending redemption. Funds are not checked until approval.
func (w *RedemptionWorkflow) Request(ctx context.Context, accountID int64, rewardName string, cost int) (*model.RedemptionRequest, error) {
	req, err := w.request(ctx, accountID, rewardName, cost)
	metrics.RecordRedemptionRequest(outcome(err))
	if err != nil {
		return nil, err
	}
	w.logger.Info("redemption requested",
		"account_id", accountID,
		"request_id", req.ID,
		"reward", req.RewardName,
		"cost", req.Cost,
	)
	return req, nil
}

func (w *RedemptionWorkflow) request(ctx context.Context, accountID int64, rewardName string, cost int) (*model.RedemptionRequest, error) {
	rewardName = strings.TrimSpace(rewardName)
	if rewardName == "" {
		return nil, invalid("reward_name is required")
	}
	if cost <= 0 {
		return nil, invalid("reward_points must be a positive integer")
	}

	var req *model.RedemptionRequest
	err := InTx(ctx, w.db, func(tx *sqlx.Tx) error {
		if _, err := w.accounts.GetByID(ctx, tx, accountID); err != nil {
			return err
		}
		var id int64
		err := get(ctx, tx, &id,
			`INSERT INTO redemption_requests (account_id, reward_name, cost) VALUES (?, ?, ?) RETURNING id`,
			accountID, rewardName, cost,
		)
		if err != nil {
			return persistence("insert redemption request", err)
		}
		req, err = w.get(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// Approve debits the requesting account and marks the request approved, all
// in one transaction. Requests that are missing or already approved yield
// ErrNotFound. When the balance does not cover the cost nothing changes and
// ErrInsufficientFunds is returned.
func (w *RedemptionWorkflow) Approve(ctx context.Context, requestID, approverID int64) (*ApproveResult, error) {
	var res ApproveResult
	err := InTx(ctx, w.db, func(tx *sqlx.Tx) error {
		var pending model.RedemptionRequest
		err := get(ctx, tx, &pending,
			`SELECT id, account_id, reward_name, cost, approved, deducted, requested_at, approved_at, approved_by
			 FROM redemption_requests WHERE id = ? AND approved = FALSE`+forUpdate(tx),
			requestID,
		)
		if isNoRows(err) {
			return fmt.Errorf("%w: pending redemption request %d", ErrNotFound, requestID)
		}
		if err != nil {
			return persistence("lock redemption request", err)
		}

		if pending.Cost <= 0 {
			return invalid("redemption request %d has invalid cost %d", requestID, pending.Cost)
		}

		balance, err := w.accounts.Debit(ctx, tx, pending.AccountID, pending.Cost)
		if err != nil {
			return err
		}

		n, err := exec(ctx, tx,
			`UPDATE redemption_requests
			 SET approved = TRUE, deducted = TRUE, approved_at = CURRENT_TIMESTAMP, approved_by = ?
			 WHERE id = ? AND approved = FALSE AND deducted = FALSE`,
			approverID, requestID,
		)
		if err != nil {
			return persistence("approve redemption request", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: pending redemption request %d", ErrNotFound, requestID)
		}

		req, err := w.get(ctx, tx, requestID)
		if err != nil {
			return err
		}
		res = ApproveResult{Request: req, Balance: balance}
		return nil
	})

	points := 0
	if err == nil {
		points = res.Request.Cost
	}
	metrics.RecordApproval(outcome(err), points)
	if err != nil {
		return nil, err
	}

	w.logger.Info("redemption approved",
		"request_id", requestID,
		"account_id", res.Request.AccountID,
		"approver_id", approverID,
		"cost", res.Request.Cost,
		"balance", res.Balance,
	)
	return &res, nil
}

// ApproveMany approves each id in its own transaction. A failure on one id
// does not affect the others.
func (w *RedemptionWorkflow) ApproveMany(ctx context.Context, ids []int64, approverID int64) []ApproveOutcome {
	out := make([]ApproveOutcome, 0, len(ids))
	for _, id := range ids {
		res, err := w.Approve(ctx, id, approverID)
		out = append(out, ApproveOutcome{ID: id, Result: res, Err: err})
	}
	return out
}

func (w *RedemptionWorkflow) Get(ctx context.Context, id int64) (*model.RedemptionRequest, error) {
	return w.get(ctx, w.db, id)
}

func (w *RedemptionWorkflow) get(ctx context.Context, q Querier, id int64) (*model.RedemptionRequest, error) {
	var req model.RedemptionRequest
	err := get(ctx, q, &req, `SELECT `+redemptionCols+redemptionFrom+` WHERE r.id = ?`, id)
	if isNoRows(err) {
		return nil, fmt.Errorf("%w: redemption request %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, persistence("get redemption request", err)
	}
	return &req, nil
}

// List returns every request when isAdmin is set, otherwise only the
// account's own. Newest first.
func (w *RedemptionWorkflow) List(ctx context.Context, accountID int64, isAdmin bool) ([]model.RedemptionRequest, error) {
	query := `SELECT ` + redemptionCols + redemptionFrom
	var args []any
	if !isAdmin {
		query += ` WHERE r.account_id = ?`
		args = append(args, accountID)
	}
	query += ` ORDER BY r.requested_at DESC, r.id DESC`

	reqs := []model.RedemptionRequest{}
	if err := selectAll(ctx, w.db, &reqs, query, args...); err != nil {
		return nil, persistence("list redemption requests", err)
	}
	return reqs, nil
}
