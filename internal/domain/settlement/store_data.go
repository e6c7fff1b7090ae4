package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/Abdihaliim1/tmsv3-sub004/internal/domain/driverpay"
	"github.com/Abdihaliim1/tmsv3-sub004/internal/domain/ledger"
)

const uniqueViolation = "23505"

// settlementDetail is the itemised part of a settlement kept as JSON.
type settlementDetail struct {
	JobIDs      []string            `json:"jobIds"`
	JobPay      []driverpay.JobPay  `json:"jobPay"`
	Deductions  Deductions          `json:"deductions"`
	Warnings    []driverpay.Warning `json:"warnings,omitempty"`
	Allocations []ledger.Allocation `json:"allocations,omitempty"`
}

const settlementColumns = `
    id::text, payee_id, payee_name, classification, status,
    base_pay, accessorial_pay, gross_pay, net_payable, carried_debt, detail_json,
    COALESCE(carried_obligation_id::text, ''), COALESCE(statement_path, ''),
    created_at, finalized_at, voided_at
  `

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSettlement(row rowScanner) (Settlement, error) {
	var s Settlement
	var classification, status string
	var detailJSON []byte
	err := row.Scan(
		&s.ID, &s.PayeeID, &s.PayeeName, &classification, &status,
		&s.BasePay, &s.AccessorialPay, &s.GrossPay, &s.NetPayable, &s.CarriedDebt, &detailJSON,
		&s.CarriedDebtObligationID, &s.StatementPath,
		&s.CreatedAt, &s.FinalizedAt, &s.VoidedAt,
	)
	if err != nil {
		return Settlement{}, err
	}
	s.Classification = Classification(classification)
	s.Status = Status(status)
	var detail settlementDetail
	if len(detailJSON) > 0 {
		if err := json.Unmarshal(detailJSON, &detail); err != nil {
			return Settlement{}, fmt.Errorf("settlement %s detail: %w", s.ID, err)
		}
	}
	s.JobIDs = detail.JobIDs
	s.JobPay = detail.JobPay
	s.Deductions = detail.Deductions
	s.Warnings = detail.Warnings
	s.Allocations = detail.Allocations
	return s, nil
}

func collectSettlements(rows pgx.Rows) ([]Settlement, error) {
	defer rows.Close()
	var out []Settlement
	for rows.Next() {
		s, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (s *Store) GetPayee(ctx context.Context, payeeID string) (Payee, error) {
	var payee Payee
	var classification, payType string
	var rate decimal.NullDecimal
	err := s.DB.QueryRow(ctx, `
    SELECT id, name, classification, COALESCE(pay_type, ''), pay_rate
    FROM payees
    WHERE id = $1
  `, payeeID).Scan(&payee.ID, &payee.Name, &classification, &payType, &rate)
	if errors.Is(err, pgx.ErrNoRows) {
		return Payee{}, ErrPayeeNotFound
	}
	if err != nil {
		return Payee{}, err
	}
	payee.Classification = Classification(classification)
	if payType != "" {
		profile := &driverpay.PayProfile{PayeeID: payee.ID, Type: driverpay.PayType(payType), Rate: decimal.Zero}
		if rate.Valid {
			profile.Rate = rate.Decimal
		}
		payee.Profile = profile
	}
	return payee, nil
}

// JobsByID returns completed jobs in the order requested.
func (s *Store) JobsByID(ctx context.Context, jobIDs []string) ([]driverpay.Job, error) {
	if len(jobIDs) == 0 {
		return nil, nil
	}
	rows, err := s.DB.Query(ctx, `
    SELECT id, payee_id, linehaul_rate, distance, detention, layover, lumper, completed_at
    FROM jobs
    WHERE id = ANY($1) AND completed_at IS NOT NULL
  `, jobIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[string]driverpay.Job, len(jobIDs))
	for rows.Next() {
		var job driverpay.Job
		if err := rows.Scan(&job.ID, &job.PayeeID, &job.LinehaulRate, &job.Distance,
			&job.Accessorials.Detention, &job.Accessorials.Layover, &job.Accessorials.Lumper, &job.CompletedAt); err != nil {
			return nil, err
		}
		byID[job.ID] = job
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	jobs := make([]driverpay.Job, 0, len(jobIDs))
	for _, id := range jobIDs {
		job, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (s *Store) Snapshot(ctx context.Context, payeeID string) (ledger.Snapshot, error) {
	return ledger.NewStore(s.DB).Snapshot(ctx, payeeID)
}

func (s *Store) Obligations(ctx context.Context, ids []string) (map[string]ledger.Obligation, error) {
	return ledger.NewStore(s.DB).GetMany(ctx, ids)
}

func (s *Store) CarriedDebtFrom(ctx context.Context, settlementID string) ([]ledger.Obligation, error) {
	return ledger.NewStore(s.DB).BySourceSettlement(ctx, settlementID)
}

func (s *Store) Create(ctx context.Context, draft Draft, finalizedAt time.Time) error {
	st := draft.Settlement
	detailJSON, err := json.Marshal(settlementDetail{
		JobIDs:      st.JobIDs,
		JobPay:      st.JobPay,
		Deductions:  st.Deductions,
		Warnings:    st.Warnings,
		Allocations: st.Allocations,
	})
	if err != nil {
		return err
	}

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
    INSERT INTO settlements (
      id, payee_id, payee_name, classification, status,
      base_pay, accessorial_pay, gross_pay, deductions_total, net_payable, carried_debt,
      detail_json, carried_obligation_id, created_at, finalized_at
    )
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
  `, st.ID, st.PayeeID, st.PayeeName, string(st.Classification), string(StatusFinalized),
		st.BasePay, st.AccessorialPay, st.GrossPay, st.Deductions.Total, st.NetPayable, st.CarriedDebt,
		detailJSON, nullIfEmpty(st.CarriedDebtObligationID), st.CreatedAt, finalizedAt); err != nil {
		return err
	}

	for _, jobID := range st.JobIDs {
		if _, err := tx.Exec(ctx, `
      INSERT INTO settlement_jobs (settlement_id, job_id, active)
      VALUES ($1,$2,true)
    `, st.ID, jobID); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return fmt.Errorf("%w: %s", ErrJobAlreadySettled, jobID)
			}
			return err
		}
	}

	for _, a := range st.Allocations {
		if _, err := tx.Exec(ctx, `
      INSERT INTO settlement_allocations (settlement_id, obligation_id, category, amount, expected_version)
      VALUES ($1,$2,$3,$4,$5)
    `, st.ID, a.ObligationID, string(a.Category), a.Amount, a.ExpectedVersion); err != nil {
			return err
		}
	}

	obligations := ledger.NewStore(tx)
	for _, d := range draft.Deltas {
		if err := obligations.ApplyDelta(ctx, d); err != nil {
			return err
		}
	}
	if draft.CarriedObligation != nil {
		if err := obligations.Insert(ctx, *draft.CarriedObligation); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (s *Store) Void(ctx context.Context, settlementID string, deltas []ledger.Delta, voidedAt time.Time) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
    UPDATE settlements
    SET status = $2, voided_at = $3
    WHERE id::text = $1 AND status = $4
  `, settlementID, string(StatusVoid), voidedAt, string(StatusFinalized))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyVoid
	}

	if _, err := tx.Exec(ctx, `
    UPDATE settlement_jobs SET active = false WHERE settlement_id::text = $1
  `, settlementID); err != nil {
		return err
	}

	obligations := ledger.NewStore(tx)
	for _, d := range deltas {
		if err := obligations.ApplyDelta(ctx, d); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (s *Store) Get(ctx context.Context, settlementID string) (Settlement, error) {
	st, err := scanSettlement(s.DB.QueryRow(ctx, `SELECT `+settlementColumns+`
    FROM settlements
    WHERE id::text = $1
  `, settlementID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Settlement{}, ErrSettlementNotFound
	}
	return st, err
}

func (s *Store) Count(ctx context.Context, payeeID string) (int, error) {
	var total int
	if err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1) FROM settlements WHERE payee_id = $1
  `, payeeID).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) List(ctx context.Context, payeeID string, limit, offset int) ([]Settlement, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+settlementColumns+`
    FROM settlements
    WHERE payee_id = $1
    ORDER BY created_at DESC, id
    LIMIT $2 OFFSET $3
  `, payeeID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectSettlements(rows)
}

func (s *Store) Register(ctx context.Context, filter RegisterFilter) ([]Settlement, error) {
	query := `SELECT ` + settlementColumns + ` FROM settlements WHERE status <> 'draft'`
	var args []any
	if filter.PayeeID != "" {
		args = append(args, filter.PayeeID)
		query += fmt.Sprintf(" AND payee_id = $%d", len(args))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		query += fmt.Sprintf(" AND finalized_at >= $%d", len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		query += fmt.Sprintf(" AND finalized_at < $%d", len(args))
	}
	query += " ORDER BY finalized_at, id"

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectSettlements(rows)
}

func (s *Store) SetStatementPath(ctx context.Context, settlementID, path string) error {
	_, err := s.DB.Exec(ctx, `
    UPDATE settlements SET statement_path = $2 WHERE id::text = $1
  `, settlementID, path)
	return err
}

func (s *Store) MissingStatements(ctx context.Context, limit int) ([]Settlement, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+settlementColumns+`
    FROM settlements
    WHERE status = 'finalized' AND statement_path IS NULL
    ORDER BY finalized_at
    LIMIT $1
  `, limit)
	if err != nil {
		return nil, err
	}
	return collectSettlements(rows)
}

func nullIfEmpty(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
