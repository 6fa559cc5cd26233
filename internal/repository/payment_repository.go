package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mosaicbots/postcardbot/internal/models"
)

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	const query = `
INSERT INTO payments (user_id, package_size, provider, provider_payment_charge_id, currency, amount, status, raw_payload)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	var size sql.NullInt64
	if payment.PackageSize > 0 {
		size = sql.NullInt64{Int64: int64(payment.PackageSize), Valid: true}
	}
	res, err := r.db.ExecContext(ctx, query, payment.UserID, size, payment.Provider, payment.ProviderCharge, payment.Currency, payment.Amount, payment.Status, payment.RawPayload)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	payment.ID = id
	return nil
}

// TotalPaidAmount sums confirmed payments, for the admin stats endpoint.
func (r *PaymentRepository) TotalPaidAmount(ctx context.Context) (int64, error) {
	const query = `SELECT COALESCE(SUM(amount), 0) FROM payments WHERE status = 'paid'`
	row := r.db.QueryRowContext(ctx, query)
	var total int64
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("sum payments: %w", err)
	}
	return total, nil
}
