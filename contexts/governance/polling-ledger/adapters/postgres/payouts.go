package postgresadapter

import (
	"context"
	"math/big"
	"strings"
	"time"

	domainerrors "agora/contexts/governance/polling-ledger/domain/errors"
	"agora/contexts/governance/polling-ledger/ports"

	"gorm.io/gorm/clause"
)

// Transfer records a reward payout instruction for the treasury settlement
// job. The reference is unique, so a replayed claim event cannot pay twice.
func (r *Repository) Transfer(ctx context.Context, account string, amount *big.Int, reference string) error {
	account = strings.TrimSpace(account)
	reference = strings.TrimSpace(reference)
	if account == "" || reference == "" || amount == nil || amount.Sign() <= 0 {
		return domainerrors.ErrInvalidAmount
	}
	row := payoutModel{
		Reference:   reference,
		LedgerID:    r.ledgerID,
		Account:     account,
		Amount:      amount.String(),
		RequestedAt: time.Now().UTC(),
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "reference"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return r.logError("ledger_repo_payout_insert_failed", create.Error, "reference", reference)
	}
	if create.RowsAffected > 0 {
		return nil
	}

	var existing payoutModel
	if err := r.db.WithContext(ctx).Where("reference = ?", reference).Take(&existing).Error; err != nil {
		return r.logError("ledger_repo_payout_lookup_failed", err, "reference", reference)
	}
	if existing.Account != row.Account || existing.Amount != row.Amount {
		return domainerrors.ErrConflict
	}
	return nil
}

type payoutModel struct {
	Reference   string     `gorm:"column:reference;primaryKey"`
	LedgerID    string     `gorm:"column:ledger_id;index"`
	Account     string     `gorm:"column:account;index"`
	Amount      string     `gorm:"column:amount"`
	RequestedAt time.Time  `gorm:"column:requested_at"`
	SettledAt   *time.Time `gorm:"column:settled_at"`
}

func (payoutModel) TableName() string {
	return "polling_ledger_payouts"
}

var _ ports.PayoutGateway = (*Repository)(nil)
