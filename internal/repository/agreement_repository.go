package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/writerlane/agreements-backend/internal/models"
)

var (
	ErrAgreementNotFound   = errors.New("agreement not found")
	ErrInstallmentNotFound = errors.New("installment not found")
	// ErrDuplicateReference — callback с таким reference уже обработан.
	ErrDuplicateReference = errors.New("gateway reference already recorded")
)

type AgreementRepository struct {
	db *sqlx.DB
}

func NewAgreementRepository(db *sqlx.DB) *AgreementRepository {
	return &AgreementRepository{db: db}
}

// Create сохраняет договор вместе с графиком взносов в одной транзакции.
func (r *AgreementRepository) Create(ctx context.Context, a *models.Agreement) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	err = tx.QueryRowxContext(ctx, `
		INSERT INTO agreements
			(student_id, writer_id, title, total_amount, declared_currency,
			 gateway, native_amount, exchange_rate, status, paid_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`, a.StudentID, a.WriterID, a.Title, a.TotalAmount, a.DeclaredCurrency,
		a.Gateway, a.NativeAmount, a.ExchangeRate, a.Status, a.PaidAmount,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("agreement repository: create %w", err)
	}

	for i := range a.Installments {
		inst := &a.Installments[i]
		inst.AgreementID = a.ID
		err = tx.QueryRowxContext(ctx, `
			INSERT INTO installments (agreement_id, amount, due_date, status)
			VALUES ($1, $2, $3, $4)
			RETURNING id, created_at
		`, inst.AgreementID, inst.Amount, inst.DueDate, inst.Status).Scan(&inst.ID, &inst.CreatedAt)
		if err != nil {
			return fmt.Errorf("agreement repository: create installment %w", err)
		}
	}

	return tx.Commit()
}

// GetByID возвращает договор с графиком взносов.
func (r *AgreementRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Agreement, error) {
	var a models.Agreement
	if err := r.db.GetContext(ctx, &a, `SELECT * FROM agreements WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAgreementNotFound
		}
		return nil, fmt.Errorf("agreement repository: get by id %w", err)
	}

	if err := r.loadInstallments(ctx, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// ListByStudent возвращает договоры студента (перспектива расходов).
func (r *AgreementRepository) ListByStudent(ctx context.Context, studentID uuid.UUID) ([]models.Agreement, error) {
	return r.list(ctx, `SELECT * FROM agreements WHERE student_id = $1 ORDER BY created_at DESC`, studentID)
}

// ListByWriter возвращает договоры автора (перспектива заработка).
func (r *AgreementRepository) ListByWriter(ctx context.Context, writerID uuid.UUID) ([]models.Agreement, error) {
	return r.list(ctx, `SELECT * FROM agreements WHERE writer_id = $1 ORDER BY created_at DESC`, writerID)
}

func (r *AgreementRepository) list(ctx context.Context, query string, arg interface{}) ([]models.Agreement, error) {
	var agreements []models.Agreement
	if err := r.db.SelectContext(ctx, &agreements, query, arg); err != nil {
		return nil, fmt.Errorf("agreement repository: list %w", err)
	}

	for i := range agreements {
		if err := r.loadInstallments(ctx, &agreements[i]); err != nil {
			return nil, err
		}
	}
	return agreements, nil
}

func (r *AgreementRepository) loadInstallments(ctx context.Context, a *models.Agreement) error {
	if err := r.db.SelectContext(ctx, &a.Installments, `
		SELECT * FROM installments WHERE agreement_id = $1 ORDER BY due_date, created_at
	`, a.ID); err != nil {
		return fmt.Errorf("agreement repository: load installments %w", err)
	}
	return nil
}

// UpdateStatus переводит договор в новый статус. Completed дополнительно
// получает completed_at; прочие переходы только трогают updated_at.
func (r *AgreementRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.AgreementStatus, writerID *uuid.UUID) (*models.Agreement, error) {
	query := `
		UPDATE agreements
		SET status = $2,
		    writer_id = COALESCE($3, writer_id),
		    completed_at = CASE WHEN $2 = 'completed' THEN NOW() ELSE completed_at END,
		    updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id, status, writerID)
	if err != nil {
		return nil, fmt.Errorf("agreement repository: update status %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, ErrAgreementNotFound
	}

	return r.GetByID(ctx, id)
}

// ApplyInstallmentPayment фиксирует платёж по взносу: статус взноса,
// дата оплаты и атомарный пересчёт paid_amount — всё в одной транзакции
// под FOR UPDATE, переходы по одному договору сериализованы.
func (r *AgreementRepository) ApplyInstallmentPayment(
	ctx context.Context,
	agreementID, installmentID uuid.UUID,
	status models.InstallmentStatus,
	paidAt time.Time,
) (*models.Agreement, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var current models.Installment
	err = tx.GetContext(ctx, &current, `
		SELECT * FROM installments WHERE id = $1 AND agreement_id = $2 FOR UPDATE
	`, installmentID, agreementID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInstallmentNotFound
		}
		return nil, fmt.Errorf("agreement repository: lock installment %w", err)
	}

	if current.Status != status && !current.Status.CanTransitionTo(status) {
		// Поздний или повторный callback: статус уже дальше, ничего не делаем.
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		return r.GetByID(ctx, agreementID)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE installments
		SET status = $2, payment_date = COALESCE(payment_date, $3)
		WHERE id = $1
	`, installmentID, status, paidAt)
	if err != nil {
		return nil, fmt.Errorf("agreement repository: update installment %w", err)
	}

	// paid_amount — кэш: пересчитываем из статусов взносов, не инкрементируем.
	_, err = tx.ExecContext(ctx, `
		UPDATE agreements
		SET paid_amount = (
			SELECT COALESCE(SUM(amount), 0) FROM installments
			WHERE agreement_id = $1 AND status IN ('paid', 'processing')
		),
		updated_at = NOW()
		WHERE id = $1
	`, agreementID)
	if err != nil {
		return nil, fmt.Errorf("agreement repository: refresh paid_amount %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, agreementID)
}

// ApplyLumpSumPayment фиксирует разовый платёж по договору без графика.
func (r *AgreementRepository) ApplyLumpSumPayment(ctx context.Context, agreementID uuid.UUID, amount float64) (*models.Agreement, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE agreements
		SET paid_amount = paid_amount + $2, updated_at = NOW()
		WHERE id = $1
	`, agreementID, amount)
	if err != nil {
		return nil, fmt.Errorf("agreement repository: lump sum payment %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, ErrAgreementNotFound
	}

	return r.GetByID(ctx, agreementID)
}

// RecordGatewayPayment сохраняет исход шлюза. Уникальный reference делает
// повторную доставку callback'а видимой: возвращается ErrDuplicateReference.
func (r *AgreementRepository) RecordGatewayPayment(ctx context.Context, p *models.GatewayPayment) error {
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO gateway_payments (reference, agreement_id, installment_id, amount, currency, gateway, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, p.Reference, p.AgreementID, p.InstallmentID, p.Amount, p.Currency, p.Gateway, p.Status,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateReference
		}
		return fmt.Errorf("agreement repository: record gateway payment %w", err)
	}
	return nil
}
