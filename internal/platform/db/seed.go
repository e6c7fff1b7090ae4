package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Abdihaliim1/tmsv3-sub004/internal/domain/ledger"
	"github.com/Abdihaliim1/tmsv3-sub004/internal/domain/taxonomy"
)

type demoPayee struct {
	ID             string
	Name           string
	Classification string
	PayType        string
	Rate           string
}

type demoJob struct {
	ID        string
	PayeeID   string
	Linehaul  string
	Distance  string
	Detention string
}

var demoPayees = []demoPayee{
	{ID: "drv-100", Name: "Demo Contractor", Classification: "contractor", PayType: "percentage", Rate: "65"},
	{ID: "drv-200", Name: "Demo Employee", Classification: "statutory_employee", PayType: "per_distance", Rate: "0.55"},
}

var demoJobs = []demoJob{
	{ID: "load-1001", PayeeID: "drv-100", Linehaul: "2000", Distance: "640", Detention: "75"},
	{ID: "load-1002", PayeeID: "drv-100", Linehaul: "1500", Distance: "410"},
	{ID: "load-2001", PayeeID: "drv-200", Linehaul: "1800", Distance: "720"},
}

// Seed loads a small demo fleet for local development. It is safe to run
// repeatedly.
func Seed(ctx context.Context, pool *pgxpool.Pool) error {
	for _, p := range demoPayees {
		if _, err := pool.Exec(ctx, `
      INSERT INTO payees (id, name, classification, pay_type, pay_rate)
      VALUES ($1,$2,$3,$4,$5)
      ON CONFLICT (id) DO NOTHING
    `, p.ID, p.Name, p.Classification, p.PayType, decimal.RequireFromString(p.Rate)); err != nil {
			return err
		}
	}

	completed := time.Now().UTC().Add(-24 * time.Hour)
	for _, j := range demoJobs {
		var detention any
		if j.Detention != "" {
			detention = decimal.RequireFromString(j.Detention)
		}
		if _, err := pool.Exec(ctx, `
      INSERT INTO jobs (id, payee_id, linehaul_rate, distance, detention, completed_at)
      VALUES ($1,$2,$3,$4,$5,$6)
      ON CONFLICT (id) DO NOTHING
    `, j.ID, j.PayeeID, decimal.RequireFromString(j.Linehaul), decimal.RequireFromString(j.Distance), detention, completed); err != nil {
			return err
		}
	}

	obligations := ledger.NewStore(pool)
	existing, err := obligations.Count(ctx, "drv-100")
	if err != nil || existing > 0 {
		return err
	}
	o, err := ledger.NewObligationFromCost(ledger.RecordInput{
		PayeeID: "drv-100",
		Cost: taxonomy.CostRecord{
			Type:   "Occupational accident insurance",
			Amount: decimal.RequireFromString("1000"),
			PaidBy: taxonomy.PayerEmployer,
		},
		OriginatedAt: completed.Add(-30 * 24 * time.Hour),
	}, time.Now().UTC())
	if err != nil {
		return err
	}
	return obligations.Insert(ctx, o)
}
