package program

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ItemOp identifies the kind of item mutation being applied.
type ItemOp string

const (
	OpAdd    ItemOp = "add"
	OpUpdate ItemOp = "update"
	OpRemove ItemOp = "remove"
)

// ItemMutation carries one validated item write together with the recomputed
// cached fields. The repository persists all of it in a single transaction so
// a program is never observed with items and totals out of step.
type ItemMutation struct {
	ProgramID uuid.UUID

	Op         ItemOp
	ItemID     uuid.UUID
	TherapyID  uuid.UUID
	Quantity   int64
	UnitCost   decimal.Decimal
	UnitCharge decimal.Decimal

	TotalCost       decimal.Decimal
	TotalCharge     decimal.Decimal
	Taxes           decimal.Decimal
	Margin          decimal.Decimal
	Variance        decimal.Decimal
	FinalTotalPrice decimal.Decimal
}

// ActivateParams snapshots the contract lock at the moment a program is
// first marked active.
type ActivateParams struct {
	ProgramID          uuid.UUID
	Taxes              decimal.Decimal
	FinalTotalPrice    decimal.Decimal
	Margin             decimal.Decimal
	ContractedAtMargin decimal.Decimal
}

// FinanceFix is the finance-record portion of an audit repair. Variance and
// FinalTotalPrice are pointers because which of the two is corrected depends
// on the program's pricing mode.
type FinanceFix struct {
	Taxes           decimal.Decimal
	Margin          decimal.Decimal
	Variance        *decimal.Decimal
	FinalTotalPrice *decimal.Decimal
}

// FixParams is one atomic audit repair for a program. Finance is nil when the
// program has no finance record; item rows and the contracted margin are
// never touched.
type FixParams struct {
	ProgramID   uuid.UUID
	TotalCost   decimal.Decimal
	TotalCharge decimal.Decimal
	Finance     *FinanceFix
}

// CreateProgramParams describes a new quote-status program.
type CreateProgramParams struct {
	MemberName     string
	FinanceCharges decimal.Decimal
	Discounts      decimal.Decimal
}

// Repo provides Postgres persistence for programs, items, and finances.
type Repo struct {
	Pool *pgxpool.Pool
}

// NewRepo constructs a repository over the given pool.
func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{Pool: pool}
}

// GetProgram returns one program by id.
func (r *Repo) GetProgram(ctx context.Context, id uuid.UUID) (Program, error) {
	const q = `
SELECT id, member_name, status, total_cost, total_charge, created_at
FROM programs
WHERE id = $1
`
	var p Program
	err := r.Pool.QueryRow(ctx, q, id).Scan(&p.ID, &p.MemberName, &p.Status, &p.TotalCost, &p.TotalCharge, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Program{}, ErrNotFound
		}
		return Program{}, fmt.Errorf("get program: %w", err)
	}
	return p, nil
}

// ListPrograms returns all programs ordered by creation time.
func (r *Repo) ListPrograms(ctx context.Context) ([]Program, error) {
	const q = `
SELECT id, member_name, status, total_cost, total_charge, created_at
FROM programs
ORDER BY created_at
`
	rows, err := r.Pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list programs: %w", err)
	}
	defer rows.Close()

	var out []Program
	for rows.Next() {
		var p Program
		if err := rows.Scan(&p.ID, &p.MemberName, &p.Status, &p.TotalCost, &p.TotalCharge, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan program: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListProgramIDs returns the ids of every program, for batch audits.
func (r *Repo) ListProgramIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.Pool.Query(ctx, `SELECT id FROM programs ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list program ids: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan program id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ListActiveItems returns the active items of a program with the taxable
// flag resolved live from the referenced therapy.
func (r *Repo) ListActiveItems(ctx context.Context, programID uuid.UUID) ([]Item, error) {
	const q = `
SELECT i.id, i.program_id, i.therapy_id, t.name, i.quantity, i.unit_cost, i.unit_charge, t.taxable, i.active
FROM program_items i
JOIN therapies t ON t.id = i.therapy_id
WHERE i.program_id = $1 AND i.active
ORDER BY i.created_at
`
	rows, err := r.Pool.Query(ctx, q, programID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.ProgramID, &it.TherapyID, &it.TherapyName, &it.Quantity, &it.UnitCost, &it.UnitCharge, &it.Taxable, &it.Active); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// GetFinances returns the finance record for a program.
func (r *Repo) GetFinances(ctx context.Context, programID uuid.UUID) (Finances, error) {
	const q = `
SELECT program_id, finance_charges, discounts, taxes, final_total_price, margin, contracted_at_margin, variance
FROM program_finances
WHERE program_id = $1
`
	var f Finances
	err := r.Pool.QueryRow(ctx, q, programID).Scan(
		&f.ProgramID, &f.FinanceCharges, &f.Discounts, &f.Taxes,
		&f.FinalTotalPrice, &f.Margin, &f.ContractedAtMargin, &f.Variance,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Finances{}, ErrFinancesMissing
		}
		return Finances{}, fmt.Errorf("get finances: %w", err)
	}
	return f, nil
}

// GetTherapy returns one therapy definition.
func (r *Repo) GetTherapy(ctx context.Context, id uuid.UUID) (Therapy, error) {
	var t Therapy
	err := r.Pool.QueryRow(ctx, `SELECT id, name, taxable FROM therapies WHERE id = $1`, id).
		Scan(&t.ID, &t.Name, &t.Taxable)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Therapy{}, ErrNotFound
		}
		return Therapy{}, fmt.Errorf("get therapy: %w", err)
	}
	return t, nil
}

// ListTherapies returns the therapy catalog ordered by name.
func (r *Repo) ListTherapies(ctx context.Context) ([]Therapy, error) {
	rows, err := r.Pool.Query(ctx, `SELECT id, name, taxable FROM therapies ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list therapies: %w", err)
	}
	defer rows.Close()

	var out []Therapy
	for rows.Next() {
		var t Therapy
		if err := rows.Scan(&t.ID, &t.Name, &t.Taxable); err != nil {
			return nil, fmt.Errorf("scan therapy: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CreateProgram inserts a quote-status program together with its finance
// record in one transaction.
func (r *Repo) CreateProgram(ctx context.Context, params CreateProgramParams) (Program, error) {
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Program{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	const insert = `
INSERT INTO programs (id, member_name, status, total_cost, total_charge)
VALUES ($1, $2, $3, 0, 0)
RETURNING id, member_name, status, total_cost, total_charge, created_at
`
	var p Program
	if err := tx.QueryRow(ctx, insert, uuid.New(), params.MemberName, StatusQuote).
		Scan(&p.ID, &p.MemberName, &p.Status, &p.TotalCost, &p.TotalCharge, &p.CreatedAt); err != nil {
		return Program{}, fmt.Errorf("insert program: %w", err)
	}

	const finances = `
INSERT INTO program_finances (program_id, finance_charges, discounts, taxes, final_total_price, margin, variance)
VALUES ($1, $2, $3, 0, 0, 0, 0)
`
	if _, err := tx.Exec(ctx, finances, p.ID, params.FinanceCharges, params.Discounts); err != nil {
		return Program{}, fmt.Errorf("insert finances: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Program{}, err
	}
	return p, nil
}

// ApplyItemChange persists an item write plus the recomputed program totals
// and finance fields atomically.
func (r *Repo) ApplyItemChange(ctx context.Context, m ItemMutation) error {
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	switch m.Op {
	case OpAdd:
		const q = `
INSERT INTO program_items (id, program_id, therapy_id, quantity, unit_cost, unit_charge, active)
VALUES ($1, $2, $3, $4, $5, $6, TRUE)
`
		if _, err := tx.Exec(ctx, q, uuid.New(), m.ProgramID, m.TherapyID, m.Quantity, m.UnitCost, m.UnitCharge); err != nil {
			return fmt.Errorf("insert item: %w", err)
		}
	case OpUpdate:
		const q = `
UPDATE program_items
SET quantity = $3, therapy_id = $4
WHERE id = $1 AND program_id = $2 AND active
`
		tag, err := tx.Exec(ctx, q, m.ItemID, m.ProgramID, m.Quantity, m.TherapyID)
		if err != nil {
			return fmt.Errorf("update item: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
	case OpRemove:
		const q = `
UPDATE program_items
SET active = FALSE
WHERE id = $1 AND program_id = $2 AND active
`
		tag, err := tx.Exec(ctx, q, m.ItemID, m.ProgramID)
		if err != nil {
			return fmt.Errorf("remove item: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
	default:
		return fmt.Errorf("unknown item op %q", m.Op)
	}

	const totals = `
UPDATE programs
SET total_cost = $2, total_charge = $3
WHERE id = $1
`
	if _, err := tx.Exec(ctx, totals, m.ProgramID, m.TotalCost, m.TotalCharge); err != nil {
		return fmt.Errorf("update totals: %w", err)
	}

	const finances = `
UPDATE program_finances
SET taxes = $2, margin = $3, variance = $4, final_total_price = $5
WHERE program_id = $1
`
	if _, err := tx.Exec(ctx, finances, m.ProgramID, m.Taxes, m.Margin, m.Variance, m.FinalTotalPrice); err != nil {
		return fmt.Errorf("update finances: %w", err)
	}
	return tx.Commit(ctx)
}

// Activate transitions a program to active and fixes its contract lock. The
// contracted margin is written exactly once; re-activation fails.
func (r *Repo) Activate(ctx context.Context, params ActivateParams) error {
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	const status = `
UPDATE programs
SET status = $2
WHERE id = $1
`
	tag, err := tx.Exec(ctx, status, params.ProgramID, StatusActive)
	if err != nil {
		return fmt.Errorf("activate program: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	const lock = `
UPDATE program_finances
SET taxes = $2, final_total_price = $3, margin = $4, contracted_at_margin = $5, variance = 0
WHERE program_id = $1 AND contracted_at_margin IS NULL
`
	tag, err = tx.Exec(ctx, lock, params.ProgramID, params.Taxes, params.FinalTotalPrice, params.Margin, params.ContractedAtMargin)
	if err != nil {
		return fmt.Errorf("lock finances: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFinancesMissing
	}
	return tx.Commit(ctx)
}

// ApplyFix writes one audit repair atomically. The contracted margin and
// item rows are deliberately outside its reach.
func (r *Repo) ApplyFix(ctx context.Context, params FixParams) error {
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	const totals = `
UPDATE programs
SET total_cost = $2, total_charge = $3
WHERE id = $1
`
	tag, err := tx.Exec(ctx, totals, params.ProgramID, params.TotalCost, params.TotalCharge)
	if err != nil {
		return fmt.Errorf("fix totals: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if fix := params.Finance; fix != nil {
		const finances = `
UPDATE program_finances
SET taxes = $2,
    margin = $3,
    variance = COALESCE($4, variance),
    final_total_price = COALESCE($5, final_total_price)
WHERE program_id = $1
`
		if _, err := tx.Exec(ctx, finances, params.ProgramID, fix.Taxes, fix.Margin, fix.Variance, fix.FinalTotalPrice); err != nil {
			return fmt.Errorf("fix finances: %w", err)
		}
	}
	return tx.Commit(ctx)
}
