package model

import "time"

// EarningRecord tracks one named activity for one account. Points are
// credited when Submitted flips from false to true, and never again.
type EarningRecord struct {
	ID            int64      `db:"id" json:"id"`
	AccountID     int64      `db:"account_id" json:"account_id"`
	ActivityName  string     `db:"activity_name" json:"form_title"`
	PointsAwarded int        `db:"points_awarded" json:"points_earned"`
	Submitted     bool       `db:"submitted" json:"submitted"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	SubmittedAt   *time.Time `db:"submitted_at" json:"submitted_at"`
}

const (
	RedemptionPending  = "pending"
	RedemptionApproved = "approved"
)

// RedemptionRequest is a request to exchange points for a reward.
// Deducted implies Approved.
type RedemptionRequest struct {
	ID           int64      `db:"id" json:"id"`
	AccountID    int64      `db:"account_id" json:"account_id"`
	AccountEmail string     `db:"account_email" json:"user_email"`
	RewardName   string     `db:"reward_name" json:"reward_name"`
	Cost         int        `db:"cost" json:"reward_points"`
	Approved     bool       `db:"approved" json:"approved"`
	Deducted     bool       `db:"deducted" json:"points_deducted"`
	RequestedAt  time.Time  `db:"requested_at" json:"request_date"`
	ApprovedAt   *time.Time `db:"approved_at" json:"approval_date"`
	ApprovedBy   *int64     `db:"approved_by" json:"approved_by,omitempty"`
}

func (r RedemptionRequest) Status() string {
	if r.Approved {
		return RedemptionApproved
	}
	return RedemptionPending
}
