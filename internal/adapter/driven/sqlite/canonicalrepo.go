package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ericfisherdev/barsync/internal/domain/model"
	"github.com/ericfisherdev/barsync/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CanonicalStore = (*CanonicalRepo)(nil)

// replaceTables maps replace-semantics data types to their canonical table.
var replaceTables = map[model.DataType]string{
	model.DataTypeHourlySales: "hourly_sales",
	model.DataTypeAnalytic:    "analytic_lines",
	model.DataTypePayments:    "payments",
}

// CanonicalRepo is the SQLite implementation of the CanonicalStore port interface.
type CanonicalRepo struct {
	db *DB
}

// NewCanonicalRepo creates a new CanonicalRepo backed by the given DB.
func NewCanonicalRepo(db *DB) *CanonicalRepo {
	return &CanonicalRepo{db: db}
}

// ClearDay deletes all rows of a replace-semantics data type for (tenant, date).
func (r *CanonicalRepo) ClearDay(ctx context.Context, dataType model.DataType, tenantID int64, date time.Time) error {
	table, ok := replaceTables[dataType]
	if !ok {
		return fmt.Errorf("clear day: %s is not a replace-semantics data type", dataType)
	}

	// table comes from the fixed map above, never from input.
	query := `DELETE FROM ` + table + ` WHERE tenant_id = ? AND business_date = ?`
	if _, err := r.db.Writer.ExecContext(ctx, query, tenantID, formatDate(date)); err != nil {
		return fmt.Errorf("clear %s tenant %d %s: %w", table, tenantID, formatDate(date), err)
	}
	return nil
}

// InsertHourlySale inserts one hourly sales row.
func (r *CanonicalRepo) InsertHourlySale(ctx context.Context, sale model.HourlySale) error {
	const query = `
		INSERT INTO hourly_sales (tenant_id, business_date, hour, product_id, product_desc, quantity, amount_paid)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Writer.ExecContext(ctx, query,
		sale.TenantID, formatDate(sale.BusinessDate), sale.Hour, sale.ProductID,
		sale.ProductDesc, sale.Quantity, sale.AmountPaid,
	)
	if err != nil {
		return fmt.Errorf("insert hourly sale tenant %d %s h%d product %s: %w",
			sale.TenantID, formatDate(sale.BusinessDate), sale.Hour, sale.ProductID, err)
	}
	return nil
}

// InsertAnalyticLine inserts one analytic sale line.
func (r *CanonicalRepo) InsertAnalyticLine(ctx context.Context, line model.AnalyticLine) error {
	const query = `
		INSERT INTO analytic_lines (
			tenant_id, business_date, line_id, product_id, product_desc, group_desc,
			quantity, unit_price, total, employee
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Writer.ExecContext(ctx, query,
		line.TenantID, formatDate(line.BusinessDate), line.LineID, line.ProductID, line.ProductDesc,
		line.GroupDesc, line.Quantity, line.UnitPrice, line.Total, line.Employee,
	)
	if err != nil {
		return fmt.Errorf("insert analytic line tenant %d %s line %s: %w",
			line.TenantID, formatDate(line.BusinessDate), line.LineID, err)
	}
	return nil
}

// InsertPayment inserts one payment row.
func (r *CanonicalRepo) InsertPayment(ctx context.Context, p model.Payment) error {
	const query = `
		INSERT INTO payments (tenant_id, business_date, payment_id, method, amount, fee, net_amount, paid_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Writer.ExecContext(ctx, query,
		p.TenantID, formatDate(p.BusinessDate), p.PaymentID, p.Method, p.Amount, p.Fee,
		p.NetAmount, nullTime(p.PaidAt),
	)
	if err != nil {
		return fmt.Errorf("insert payment tenant %d %s payment %s: %w",
			p.TenantID, formatDate(p.BusinessDate), p.PaymentID, err)
	}
	return nil
}

// UpsertPayable inserts or overwrites a payable keyed by (tenant, schedule id).
func (r *CanonicalRepo) UpsertPayable(ctx context.Context, p model.ScheduledPayable) error {
	const query = `
		INSERT INTO scheduled_payables (
			tenant_id, schedule_id, business_date, description, category, supplier,
			amount, paid_amount, status, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, schedule_id) DO UPDATE SET
			business_date = excluded.business_date,
			description = excluded.description,
			category = excluded.category,
			supplier = excluded.supplier,
			amount = excluded.amount,
			paid_amount = excluded.paid_amount,
			status = excluded.status,
			updated_at = excluded.updated_at
	`
	updatedAt := p.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err := r.db.Writer.ExecContext(ctx, query,
		p.TenantID, p.ScheduleID, formatDate(p.BusinessDate), p.Description, p.Category,
		p.Supplier, p.Amount, p.PaidAmount, p.Status, formatTime(updatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert payable tenant %d schedule %s: %w", p.TenantID, p.ScheduleID, err)
	}
	return nil
}

// ListHourlySales returns the hourly sales of one tenant day ordered by hour and product.
func (r *CanonicalRepo) ListHourlySales(ctx context.Context, tenantID int64, date time.Time) ([]model.HourlySale, error) {
	const query = `
		SELECT id, tenant_id, business_date, hour, product_id, product_desc, quantity, amount_paid
		FROM hourly_sales
		WHERE tenant_id = ? AND business_date = ?
		ORDER BY hour, product_id, id
	`
	rows, err := r.db.Reader.QueryContext(ctx, query, tenantID, formatDate(date))
	if err != nil {
		return nil, fmt.Errorf("query hourly sales: %w", err)
	}
	defer rows.Close()

	var sales []model.HourlySale
	for rows.Next() {
		var s model.HourlySale
		var businessDate string
		if err := rows.Scan(&s.ID, &s.TenantID, &businessDate, &s.Hour, &s.ProductID,
			&s.ProductDesc, &s.Quantity, &s.AmountPaid); err != nil {
			return nil, fmt.Errorf("scan hourly sale: %w", err)
		}
		if s.BusinessDate, err = parseDate(businessDate); err != nil {
			return nil, err
		}
		sales = append(sales, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hourly sales: %w", err)
	}

	return sales, nil
}

// ListAnalyticLines returns the analytic lines of one tenant day ordered by line id.
func (r *CanonicalRepo) ListAnalyticLines(ctx context.Context, tenantID int64, date time.Time) ([]model.AnalyticLine, error) {
	const query = `
		SELECT id, tenant_id, business_date, line_id, product_id, product_desc, group_desc,
		       quantity, unit_price, total, employee
		FROM analytic_lines
		WHERE tenant_id = ? AND business_date = ?
		ORDER BY line_id, id
	`
	rows, err := r.db.Reader.QueryContext(ctx, query, tenantID, formatDate(date))
	if err != nil {
		return nil, fmt.Errorf("query analytic lines: %w", err)
	}
	defer rows.Close()

	var lines []model.AnalyticLine
	for rows.Next() {
		var l model.AnalyticLine
		var businessDate string
		if err := rows.Scan(&l.ID, &l.TenantID, &businessDate, &l.LineID, &l.ProductID,
			&l.ProductDesc, &l.GroupDesc, &l.Quantity, &l.UnitPrice, &l.Total, &l.Employee); err != nil {
			return nil, fmt.Errorf("scan analytic line: %w", err)
		}
		if l.BusinessDate, err = parseDate(businessDate); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analytic lines: %w", err)
	}

	return lines, nil
}

// ListPayments returns the payments of one tenant day ordered by payment id.
func (r *CanonicalRepo) ListPayments(ctx context.Context, tenantID int64, date time.Time) ([]model.Payment, error) {
	const query = `
		SELECT id, tenant_id, business_date, payment_id, method, amount, fee, net_amount, paid_at
		FROM payments
		WHERE tenant_id = ? AND business_date = ?
		ORDER BY payment_id, id
	`
	rows, err := r.db.Reader.QueryContext(ctx, query, tenantID, formatDate(date))
	if err != nil {
		return nil, fmt.Errorf("query payments: %w", err)
	}
	defer rows.Close()

	var payments []model.Payment
	for rows.Next() {
		var p model.Payment
		var businessDate string
		var paidAt sql.NullString
		if err := rows.Scan(&p.ID, &p.TenantID, &businessDate, &p.PaymentID, &p.Method,
			&p.Amount, &p.Fee, &p.NetAmount, &paidAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		if p.BusinessDate, err = parseDate(businessDate); err != nil {
			return nil, err
		}
		if p.PaidAt, err = parseNullTime(paidAt); err != nil {
			return nil, fmt.Errorf("parse paid_at: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}

	return payments, nil
}

// ListPayables returns every payable of the tenant ordered by due date and schedule id.
func (r *CanonicalRepo) ListPayables(ctx context.Context, tenantID int64) ([]model.ScheduledPayable, error) {
	const query = `
		SELECT id, tenant_id, schedule_id, business_date, description, category, supplier,
		       amount, paid_amount, status, updated_at
		FROM scheduled_payables
		WHERE tenant_id = ?
		ORDER BY business_date, schedule_id
	`
	rows, err := r.db.Reader.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query payables: %w", err)
	}
	defer rows.Close()

	var payables []model.ScheduledPayable
	for rows.Next() {
		var p model.ScheduledPayable
		var businessDate, updatedAt string
		if err := rows.Scan(&p.ID, &p.TenantID, &p.ScheduleID, &businessDate, &p.Description,
			&p.Category, &p.Supplier, &p.Amount, &p.PaidAmount, &p.Status, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan payable: %w", err)
		}
		if p.BusinessDate, err = parseDate(businessDate); err != nil {
			return nil, err
		}
		if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("parse updated_at: %w", err)
		}
		payables = append(payables, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payables: %w", err)
	}

	return payables, nil
}
