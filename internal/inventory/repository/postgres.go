package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fekuna/omnipos-stock-ledger/internal/inventory"
	"github.com/fekuna/omnipos-stock-ledger/internal/inventory/dto"
	"github.com/fekuna/omnipos-stock-ledger/internal/model"
	"github.com/jmoiron/sqlx"
)

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

// Verify interface compliance
var _ inventory.Repository = (*PGRepository)(nil)

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx.
type queryer interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// Transact opens one SQL transaction and takes a transaction-scoped advisory
// lock per key, in sorted order, before running fn.
func (r *PGRepository) Transact(ctx context.Context, keys []string, fn func(tx inventory.Tx) error) error {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, k := range sortedKeys(keys) {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, k); err != nil {
			return fmt.Errorf("failed to lock %s: %w", k, err)
		}
	}

	if err := fn(&pgTx{q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *PGRepository) GetStock(ctx context.Context, variantID string) (model.StockRecord, error) {
	return getStock(ctx, r.DB, variantID)
}

func (r *PGRepository) ListBatches(ctx context.Context, variantID string) ([]model.InventoryBatch, error) {
	var items []model.InventoryBatch
	err := r.DB.SelectContext(ctx, &items, `
        SELECT * FROM inventory_batches
        WHERE variant_id = $1
        ORDER BY received_at, seq
    `, variantID)
	return items, err
}

func (r *PGRepository) GetReservation(ctx context.Context, id string) (*model.Reservation, error) {
	return getReservation(ctx, r.DB, id)
}

func (r *PGRepository) ListReservationsByHolder(ctx context.Context, holderRef string) ([]model.Reservation, error) {
	var items []model.Reservation
	err := r.DB.SelectContext(ctx, &items, `
        SELECT * FROM reservations WHERE holder_ref = $1 ORDER BY created_at, id
    `, holderRef)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if err := loadAllocations(ctx, r.DB, &items[i]); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func (r *PGRepository) ListExpiredReservations(ctx context.Context, now time.Time, limit int) ([]model.Reservation, error) {
	query := `
        SELECT * FROM reservations
        WHERE state = $1 AND expires_at IS NOT NULL AND expires_at <= $2
        ORDER BY expires_at
    `
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	var items []model.Reservation
	err := r.DB.SelectContext(ctx, &items, query, model.ReservationActive, now)
	return items, err
}

func (r *PGRepository) GetPurchaseOrder(ctx context.Context, id string) (*model.PurchaseOrder, error) {
	return getPurchaseOrder(ctx, r.DB, id)
}

func (r *PGRepository) ListMovements(ctx context.Context, f *dto.MovementFilters) ([]model.StockMovement, int, error) {
	var items []model.StockMovement
	var count int

	conditions := []string{}
	args := map[string]interface{}{}

	if f.VariantID != "" {
		conditions = append(conditions, "variant_id = :variant_id")
		args["variant_id"] = f.VariantID
	}
	if f.MovementType != "" {
		conditions = append(conditions, "movement_type = :movement_type")
		args["movement_type"] = f.MovementType
	}
	if f.ReferenceID != "" {
		conditions = append(conditions, "reference_id = :reference_id")
		args["reference_id"] = f.ReferenceID
	}
	if f.StartDate != nil {
		conditions = append(conditions, "created_at >= :start_date")
		args["start_date"] = *f.StartDate
	}
	if f.EndDate != nil {
		conditions = append(conditions, "created_at <= :end_date")
		args["end_date"] = *f.EndDate
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := "SELECT count(*) FROM stock_movements" + whereClause
	rows, err := r.DB.NamedQueryContext(ctx, countQuery, args)
	if err != nil {
		return nil, 0, err
	}
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			rows.Close()
			return nil, 0, err
		}
	}
	rows.Close()

	query := "SELECT * FROM stock_movements" + whereClause + " ORDER BY created_at DESC"
	if f.PageSize > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.PageSize, (page-1)*f.PageSize)
	}

	nstmt, err := r.DB.PrepareNamedContext(ctx, query)
	if err != nil {
		return nil, 0, err
	}
	defer nstmt.Close()

	err = nstmt.SelectContext(ctx, &items, args)
	return items, count, err
}

type pgTx struct {
	q *sqlx.Tx
}

func (t *pgTx) GetStock(ctx context.Context, variantID string) (model.StockRecord, error) {
	return getStock(ctx, t.q, variantID)
}

func (t *pgTx) SaveStock(ctx context.Context, rec *model.StockRecord) error {
	_, err := t.q.NamedExecContext(ctx, `
        INSERT INTO stock_records (variant_id, on_hand, reserved, updated_at)
        VALUES (:variant_id, :on_hand, :reserved, :updated_at)
        ON CONFLICT (variant_id)
        DO UPDATE SET
            on_hand = EXCLUDED.on_hand,
            reserved = EXCLUDED.reserved,
            updated_at = EXCLUDED.updated_at
    `, rec)
	if err != nil {
		return fmt.Errorf("failed to save stock record: %w", err)
	}
	return nil
}

func (t *pgTx) LogMovement(ctx context.Context, m *model.StockMovement) error {
	_, err := t.q.NamedExecContext(ctx, `
        INSERT INTO stock_movements (
            id, variant_id, movement_type, quantity_change,
            on_hand_before, on_hand_after, reserved_before, reserved_after,
            reference_type, reference_id, notes, created_at
        )
        VALUES (
            :id, :variant_id, :movement_type, :quantity_change,
            :on_hand_before, :on_hand_after, :reserved_before, :reserved_after,
            :reference_type, :reference_id, :notes, :created_at
        )
    `, m)
	if err != nil {
		return fmt.Errorf("failed to log movement: %w", err)
	}
	return nil
}

func (t *pgTx) ListOpenBatches(ctx context.Context, variantID string) ([]model.InventoryBatch, error) {
	var items []model.InventoryBatch
	err := t.q.SelectContext(ctx, &items, `
        SELECT * FROM inventory_batches
        WHERE variant_id = $1 AND quantity_remaining > 0
        ORDER BY received_at, seq
    `, variantID)
	return items, err
}

func (t *pgTx) InsertBatch(ctx context.Context, b *model.InventoryBatch) error {
	rows, err := sqlx.NamedQueryContext(ctx, t.q, `
        INSERT INTO inventory_batches (
            id, variant_id, purchase_order_id, line_no, adjustment_id, received_at,
            quantity_received, quantity_remaining, unit_cost
        )
        VALUES (
            :id, :variant_id, :purchase_order_id, :line_no, :adjustment_id, :received_at,
            :quantity_received, :quantity_remaining, :unit_cost
        )
        RETURNING seq
    `, b)
	if err != nil {
		return fmt.Errorf("failed to insert batch: %w", err)
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&b.Seq); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (t *pgTx) UpdateBatchRemaining(ctx context.Context, batchID string, remaining int64) error {
	res, err := t.q.ExecContext(ctx, `
        UPDATE inventory_batches SET quantity_remaining = $2 WHERE id = $1
    `, batchID, remaining)
	if err != nil {
		return fmt.Errorf("failed to update batch: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("batch %s: %w", batchID, inventory.ErrNotFound)
	}
	return nil
}

func (t *pgTx) GetReservation(ctx context.Context, id string) (*model.Reservation, error) {
	return getReservation(ctx, t.q, id)
}

func (t *pgTx) SaveReservation(ctx context.Context, res *model.Reservation) error {
	_, err := t.q.NamedExecContext(ctx, `
        INSERT INTO reservations (
            id, variant_id, quantity, holder_ref, state,
            created_at, expires_at, closed_at, total_cost
        )
        VALUES (
            :id, :variant_id, :quantity, :holder_ref, :state,
            :created_at, :expires_at, :closed_at, :total_cost
        )
        ON CONFLICT (id)
        DO UPDATE SET
            state = EXCLUDED.state,
            expires_at = EXCLUDED.expires_at,
            closed_at = EXCLUDED.closed_at,
            total_cost = EXCLUDED.total_cost
    `, res)
	if err != nil {
		return fmt.Errorf("failed to save reservation: %w", err)
	}

	for _, a := range res.Allocations {
		_, err := t.q.ExecContext(ctx, `
            INSERT INTO reservation_allocations (reservation_id, batch_id, quantity, unit_cost)
            VALUES ($1, $2, $3, $4)
            ON CONFLICT (reservation_id, batch_id) DO NOTHING
        `, res.ID, a.BatchID, a.Quantity, a.UnitCost)
		if err != nil {
			return fmt.Errorf("failed to save allocation: %w", err)
		}
	}
	return nil
}

func (t *pgTx) GetPurchaseOrder(ctx context.Context, id string) (*model.PurchaseOrder, error) {
	return getPurchaseOrder(ctx, t.q, id)
}

func (t *pgTx) SavePurchaseOrder(ctx context.Context, po *model.PurchaseOrder) error {
	_, err := t.q.NamedExecContext(ctx, `
        INSERT INTO purchase_orders (id, supplier_ref, state, created_at, updated_at)
        VALUES (:id, :supplier_ref, :state, :created_at, :updated_at)
        ON CONFLICT (id)
        DO UPDATE SET
            state = EXCLUDED.state,
            updated_at = EXCLUDED.updated_at
    `, po)
	if err != nil {
		return fmt.Errorf("failed to save purchase order: %w", err)
	}

	for i := range po.Lines {
		_, err := t.q.NamedExecContext(ctx, `
            INSERT INTO purchase_order_lines (
                purchase_order_id, line_no, variant_id,
                quantity_ordered, quantity_received, unit_cost
            )
            VALUES (
                :purchase_order_id, :line_no, :variant_id,
                :quantity_ordered, :quantity_received, :unit_cost
            )
            ON CONFLICT (purchase_order_id, line_no)
            DO UPDATE SET quantity_received = EXCLUDED.quantity_received
        `, &po.Lines[i])
		if err != nil {
			return fmt.Errorf("failed to save purchase order line: %w", err)
		}
	}
	return nil
}

func getStock(ctx context.Context, q queryer, variantID string) (model.StockRecord, error) {
	var rec model.StockRecord
	err := q.GetContext(ctx, &rec, `SELECT * FROM stock_records WHERE variant_id = $1`, variantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.StockRecord{VariantID: variantID}, nil
		}
		return model.StockRecord{}, err
	}
	return rec, nil
}

func getReservation(ctx context.Context, q queryer, id string) (*model.Reservation, error) {
	var res model.Reservation
	err := q.GetContext(ctx, &res, `SELECT * FROM reservations WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("reservation %s: %w", id, inventory.ErrNotFound)
		}
		return nil, err
	}
	if err := loadAllocations(ctx, q, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func loadAllocations(ctx context.Context, q queryer, res *model.Reservation) error {
	if res.State != model.ReservationCommitted {
		return nil
	}
	return q.SelectContext(ctx, &res.Allocations, `
        SELECT a.batch_id, a.quantity, a.unit_cost
        FROM reservation_allocations a
        JOIN inventory_batches b ON b.id = a.batch_id
        WHERE a.reservation_id = $1
        ORDER BY b.received_at, b.seq
    `, res.ID)
}

func getPurchaseOrder(ctx context.Context, q queryer, id string) (*model.PurchaseOrder, error) {
	var po model.PurchaseOrder
	err := q.GetContext(ctx, &po, `SELECT * FROM purchase_orders WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("purchase order %s: %w", id, inventory.ErrNotFound)
		}
		return nil, err
	}
	err = q.SelectContext(ctx, &po.Lines, `
        SELECT * FROM purchase_order_lines WHERE purchase_order_id = $1 ORDER BY line_no
    `, id)
	if err != nil {
		return nil, err
	}
	return &po, nil
}
