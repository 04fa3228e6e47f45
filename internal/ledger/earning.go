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

// DefaultActivityPoints is awarded for an activity unless configured otherwise.
const DefaultActivityPoints = 20

const earningCols = `id, account_id, activity_name, points_awarded, submitted, created_at, submitted_at`

// SubmitResult is returned by a successful MarkSubmitted.
type SubmitResult struct {
	Record  *model.EarningRecord
	Balance int
}

// EarningLedger records point-earning activities and credits the account
// the first time each one is submitted.
type EarningLedger struct {
	db       *sqlx.DB
	accounts *AccountStore
	points   int
	logger   *slog.Logger
}

func NewEarningLedger(db *sqlx.DB, accounts *AccountStore, points int, logger *slog.Logger) *EarningLedger {
	if points <= 0 {
		points = DefaultActivityPoints
	}
	return &EarningLedger{db: db, accounts: accounts, points: points, logger: logger}
}

func cleanActivity(activity string) (string, error) {
	activity = strings.TrimSpace(activity)
	if activity == "" {
		return "", invalid("form_title is required")
	}
	return activity, nil
}

// GetOrCreate ensures a record exists for the account and activity and
// returns it. Repeated calls return the same record.
func (l *EarningLedger) GetOrCreate(ctx context.Context, accountID int64, activity string) (*model.EarningRecord, error) {
	activity, err := cleanActivity(activity)
	if err != nil {
		return nil, err
	}
	var rec *model.EarningRecord
	err = InTx(ctx, l.db, func(tx *sqlx.Tx) error {
		rec, err = l.ensure(ctx, tx, accountID, activity)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (l *EarningLedger) ensure(ctx context.Context, q Querier, accountID int64, activity string) (*model.EarningRecord, error) {
	if _, err := l.accounts.GetByID(ctx, q, accountID); err != nil {
		return nil, err
	}

	_, err := exec(ctx, q,
		`INSERT INTO earning_records (account_id, activity_name, points_awarded) VALUES (?, ?, ?)
		 ON CONFLICT (account_id, activity_name) DO NOTHING`,
		accountID, activity, l.points,
	)
	if err != nil {
		return nil, persistence("insert earning record", err)
	}

	var rec model.EarningRecord
	err = get(ctx, q, &rec,
		`SELECT `+earningCols+` FROM earning_records WHERE account_id = ? AND activity_name = ?`,
		accountID, activity,
	)
	if err != nil {
		return nil, persistence("get earning record", err)
	}
	return &rec, nil
}

// MarkSubmitted flips the record's submitted flag and credits its points in
// one transaction. A record that was already submitted yields
// ErrAlreadySubmitted and leaves the balance alone.
func (l *EarningLedger) MarkSubmitted(ctx context.Context, accountID int64, activity string) (*SubmitResult, error) {
	activity, err := cleanActivity(activity)
	if err != nil {
		return nil, err
	}

	var res SubmitResult
	err = InTx(ctx, l.db, func(tx *sqlx.Tx) error {
		rec, err := l.ensure(ctx, tx, accountID, activity)
		if err != nil {
			return err
		}

		n, err := exec(ctx, tx,
			`UPDATE earning_records SET submitted = TRUE, submitted_at = CURRENT_TIMESTAMP
			 WHERE id = ? AND submitted = FALSE`,
			rec.ID,
		)
		if err != nil {
			return persistence("mark submitted", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: %q", ErrAlreadySubmitted, activity)
		}

		balance, err := l.accounts.Credit(ctx, tx, accountID, rec.PointsAwarded)
		if err != nil {
			return err
		}

		if err := get(ctx, tx, rec, `SELECT `+earningCols+` FROM earning_records WHERE id = ?`, rec.ID); err != nil {
			return persistence("reload earning record", err)
		}
		res = SubmitResult{Record: rec, Balance: balance}
		return nil
	})

	points := 0
	if err == nil {
		points = res.Record.PointsAwarded
	}
	metrics.RecordEarning(outcome(err), points)
	if err != nil {
		return nil, err
	}

	l.logger.Info("activity submitted",
		"account_id", accountID,
		"activity", activity,
		"points", res.Record.PointsAwarded,
		"balance", res.Balance,
	)
	return &res, nil
}

func (l *EarningLedger) SubmittedCount(ctx context.Context, accountID int64) (int, error) {
	var n int
	err := get(ctx, l.db, &n,
		`SELECT COUNT(*) FROM earning_records WHERE account_id = ? AND submitted = TRUE`, accountID)
	if err != nil {
		return 0, persistence("count submitted", err)
	}
	return n, nil
}

func (l *EarningLedger) ListSubmittedTitles(ctx context.Context, accountID int64) ([]string, error) {
	titles := []string{}
	err := selectAll(ctx, l.db, &titles,
		`SELECT activity_name FROM earning_records
		 WHERE account_id = ? AND submitted = TRUE
		 ORDER BY submitted_at, id`, accountID)
	if err != nil {
		return nil, persistence("list submitted", err)
	}
	return titles, nil
}
