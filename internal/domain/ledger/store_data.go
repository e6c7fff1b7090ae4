package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Abdihaliim1/tmsv3-sub004/internal/domain/taxonomy"
)

const obligationColumns = `
    o.id::text, o.payee_id, COALESCE(o.job_id, ''), o.category, o.description,
    o.total_amount, o.amount_paid, o.status, o.employer_paid, o.originated_at, o.version,
    COALESCE(o.last_settlement_id::text, ''), COALESCE(o.linked_settlement_id::text, ''),
    COALESCE(ls.status = 'finalized', false), COALESCE(o.source_settlement_id::text, ''),
    o.created_at, o.updated_at
  `

const obligationFrom = `
    FROM obligations o
    LEFT JOIN settlements ls ON ls.id = o.linked_settlement_id
  `

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObligation(row rowScanner) (Obligation, error) {
	var o Obligation
	var category, status string
	err := row.Scan(
		&o.ID, &o.PayeeID, &o.JobID, &category, &o.Description,
		&o.TotalAmount, &o.AmountPaid, &status, &o.EmployerPaid, &o.OriginatedAt, &o.Version,
		&o.LastSettlementID, &o.LinkedSettlementID,
		&o.LinkedSettlementFinalized, &o.SourceSettlementID,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return Obligation{}, err
	}
	o.Category = taxonomy.ParseCategory(category)
	o.Status = Status(status)
	return o, nil
}

func collectObligations(rows pgx.Rows) ([]Obligation, error) {
	defer rows.Close()
	var out []Obligation
	for rows.Next() {
		o, err := scanObligation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) Snapshot(ctx context.Context, payeeID string) (Snapshot, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+obligationColumns+obligationFrom+`
    WHERE o.payee_id = $1
      AND o.status = 'active'
      AND o.employer_paid
      AND o.total_amount - o.amount_paid > 0
    ORDER BY o.originated_at, o.id
  `, payeeID)
	if err != nil {
		return Snapshot{}, err
	}
	obligations, err := collectObligations(rows)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{PayeeID: payeeID, Obligations: obligations, TakenAt: time.Now().UTC()}, nil
}

func (s *Store) Get(ctx context.Context, id string) (Obligation, error) {
	o, err := scanObligation(s.DB.QueryRow(ctx, `SELECT `+obligationColumns+obligationFrom+`
    WHERE o.id::text = $1
  `, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Obligation{}, ErrObligationNotFound
	}
	return o, err
}

func (s *Store) GetMany(ctx context.Context, ids []string) (map[string]Obligation, error) {
	out := make(map[string]Obligation, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.DB.Query(ctx, `SELECT `+obligationColumns+obligationFrom+`
    WHERE o.id::text = ANY($1)
  `, ids)
	if err != nil {
		return nil, err
	}
	obligations, err := collectObligations(rows)
	if err != nil {
		return nil, err
	}
	for _, o := range obligations {
		out[o.ID] = o
	}
	return out, nil
}

func (s *Store) BySourceSettlement(ctx context.Context, settlementID string) ([]Obligation, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+obligationColumns+obligationFrom+`
    WHERE o.source_settlement_id::text = $1
    ORDER BY o.id
  `, settlementID)
	if err != nil {
		return nil, err
	}
	return collectObligations(rows)
}

func (s *Store) Count(ctx context.Context, payeeID string) (int, error) {
	var total int
	if err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1) FROM obligations WHERE payee_id = $1
  `, payeeID).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) List(ctx context.Context, payeeID string, limit, offset int) ([]Obligation, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+obligationColumns+obligationFrom+`
    WHERE o.payee_id = $1
    ORDER BY o.originated_at, o.id
    LIMIT $2 OFFSET $3
  `, payeeID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectObligations(rows)
}

func (s *Store) Insert(ctx context.Context, o Obligation) error {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO obligations (
      id, payee_id, job_id, category, description, total_amount, amount_paid, status,
      employer_paid, originated_at, version, source_settlement_id, created_at, updated_at
    )
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
  `, o.ID, o.PayeeID, nullIfEmpty(o.JobID), string(o.Category), o.Description, o.TotalAmount, o.AmountPaid, string(o.Status),
		o.EmployerPaid, o.OriginatedAt, o.Version, nullIfEmpty(o.SourceSettlementID), o.CreatedAt, o.UpdatedAt)
	return err
}

// ApplyDelta is the compare-and-swap write; a stale version affects no rows
// and reports ErrConcurrentModification.
func (s *Store) ApplyDelta(ctx context.Context, d Delta) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE obligations
    SET amount_paid = $3,
        status = $4,
        last_settlement_id = $5,
        linked_settlement_id = $6,
        version = version + 1,
        updated_at = now()
    WHERE id::text = $1 AND version = $2 AND $3 <= total_amount
  `, d.ObligationID, d.ExpectedVersion, d.AmountPaid, string(d.Status), nullIfEmpty(d.LastSettlementID), nullIfEmpty(d.LinkedSettlementID))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConcurrentModification
	}
	return nil
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
