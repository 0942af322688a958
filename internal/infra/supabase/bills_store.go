package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/boddenberg/utility-bills-bfa/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Bills: CRUD via PostgREST (implements port.BillStore)
// ============================================================

const billsTable = "bills"

// billRow maps the bills table columns.
type billRow struct {
	ID        string   `json:"id"`
	UserID    string   `json:"user_id"`
	BillType  string   `json:"bill_type"`
	Date      string   `json:"date"`
	Usage     float64  `json:"usage"`
	Cost      float64  `json:"cost"`
	GoalUsage *float64 `json:"goal_usage"`
	CreatedAt string   `json:"created_at"`
}

func (r billRow) toDomain() (domain.BillRecord, error) {
	date, err := domain.ParseBillDate(r.Date)
	if err != nil {
		return domain.BillRecord{}, fmt.Errorf("bill %s: %w", r.ID, err)
	}
	var created time.Time
	if r.CreatedAt != "" {
		created, _ = domain.ParseBillDate(r.CreatedAt)
	}
	return domain.BillRecord{
		ID:        r.ID,
		OwnerID:   r.UserID,
		BillType:  domain.BillType(r.BillType),
		Date:      date,
		Usage:     r.Usage,
		Cost:      r.Cost,
		GoalUsage: r.GoalUsage,
		CreatedAt: created,
	}, nil
}

func decodeBills(body []byte) ([]domain.BillRecord, error) {
	if len(body) == 0 {
		return []domain.BillRecord{}, nil
	}
	var rows []billRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode bills: %w", err)
	}
	bills := make([]domain.BillRecord, 0, len(rows))
	for _, r := range rows {
		b, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		bills = append(bills, b)
	}
	return bills, nil
}

// ListBills returns every bill of the owner, oldest first.
func (c *Client) ListBills(ctx context.Context, ownerID string) ([]domain.BillRecord, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListBills")
	defer span.End()
	span.SetAttributes(attribute.String("owner.id", ownerID))

	var bills []domain.BillRecord
	err := c.guarded(ctx, func(ctx context.Context) error {
		path := fmt.Sprintf("%s?user_id=eq.%s&order=date.asc,created_at.asc", billsTable, url.QueryEscape(ownerID))
		body, err := c.doRequest(ctx, http.MethodGet, path)
		if err != nil {
			return err
		}
		bills, err = decodeBills(body)
		return err
	})
	if err != nil {
		return nil, c.unavailable(err)
	}

	span.SetAttributes(attribute.Int("bills.count", len(bills)))
	return bills, nil
}

// CreateBill inserts a bill; Supabase assigns id and created_at.
func (c *Client) CreateBill(ctx context.Context, ownerID string, in *domain.BillInput) (*domain.BillRecord, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateBill")
	defer span.End()
	span.SetAttributes(
		attribute.String("owner.id", ownerID),
		attribute.String("bill.type", string(in.BillType)),
	)

	row := map[string]any{
		"user_id":    ownerID,
		"bill_type":  string(in.BillType),
		"date":       in.Date.Format(domain.DateLayout),
		"usage":      in.Usage,
		"cost":       in.Cost,
		"goal_usage": in.GoalUsage,
	}

	var created []domain.BillRecord
	err := c.guarded(ctx, func(ctx context.Context) error {
		body, err := c.doPost(ctx, billsTable, row)
		if err != nil {
			return err
		}
		created, err = decodeBills(body)
		return err
	})
	if err != nil {
		return nil, c.unavailable(err)
	}
	if len(created) == 0 {
		return nil, c.unavailable(fmt.Errorf("no result from %s insert", billsTable))
	}

	c.logger.Info("supabase: bill created",
		zap.String("owner_id", ownerID),
		zap.String("bill_id", created[0].ID),
	)
	return &created[0], nil
}

// UpdateBill applies patch to a bill of the owner.
func (c *Client) UpdateBill(ctx context.Context, ownerID, id string, patch *domain.BillPatch) (*domain.BillRecord, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateBill")
	defer span.End()
	span.SetAttributes(
		attribute.String("owner.id", ownerID),
		attribute.String("bill.id", id),
	)

	data := patchColumns(patch)
	path := fmt.Sprintf("%s?id=eq.%s&user_id=eq.%s", billsTable, url.QueryEscape(id), url.QueryEscape(ownerID))

	var updated []domain.BillRecord
	err := c.guarded(ctx, func(ctx context.Context) error {
		var body []byte
		var err error
		if len(data) == 0 {
			body, err = c.doRequest(ctx, http.MethodGet, path+"&limit=1")
		} else {
			body, err = c.doPatch(ctx, path, data)
		}
		if err != nil {
			return err
		}
		updated, err = decodeBills(body)
		return err
	})
	if err != nil {
		return nil, c.unavailable(err)
	}
	if len(updated) == 0 {
		return nil, &domain.ErrNotFound{Resource: "bill", ID: id}
	}
	return &updated[0], nil
}

func patchColumns(p *domain.BillPatch) map[string]any {
	data := map[string]any{}
	if p == nil {
		return data
	}
	if p.BillType != nil {
		data["bill_type"] = string(*p.BillType)
	}
	if p.Date != nil {
		data["date"] = p.Date.Format(domain.DateLayout)
	}
	if p.Usage != nil {
		data["usage"] = *p.Usage
	}
	if p.Cost != nil {
		data["cost"] = *p.Cost
	}
	if p.GoalUsage != nil {
		data["goal_usage"] = *p.GoalUsage
	}
	return data
}

// LatestBill returns the owner's bill with the most recent date.
func (c *Client) LatestBill(ctx context.Context, ownerID string) (*domain.BillRecord, error) {
	ctx, span := tracer.Start(ctx, "Supabase.LatestBill")
	defer span.End()
	span.SetAttributes(attribute.String("owner.id", ownerID))

	var bills []domain.BillRecord
	err := c.guarded(ctx, func(ctx context.Context) error {
		path := fmt.Sprintf("%s?user_id=eq.%s&order=date.desc,created_at.desc&limit=1", billsTable, url.QueryEscape(ownerID))
		body, err := c.doRequest(ctx, http.MethodGet, path)
		if err != nil {
			return err
		}
		bills, err = decodeBills(body)
		return err
	})
	if err != nil {
		return nil, c.unavailable(err)
	}
	if len(bills) == 0 {
		return nil, &domain.ErrNotFound{Resource: "bill", ID: "latest"}
	}
	return &bills[0], nil
}

// ExistingBillTypes lists the distinct bill types recorded in a month.
func (c *Client) ExistingBillTypes(ctx context.Context, ownerID string, month, year int) ([]domain.BillType, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ExistingBillTypes")
	defer span.End()
	span.SetAttributes(
		attribute.String("owner.id", ownerID),
		attribute.Int("month", month),
		attribute.Int("year", year),
	)

	start, end := domain.MonthRange(month, year)
	var rows []struct {
		BillType string `json:"bill_type"`
	}
	err := c.guarded(ctx, func(ctx context.Context) error {
		path := fmt.Sprintf("%s?select=bill_type&user_id=eq.%s&date=gte.%s&date=lt.%s",
			billsTable, url.QueryEscape(ownerID), start.Format(domain.DateLayout), end.Format(domain.DateLayout))
		body, err := c.doRequest(ctx, http.MethodGet, path)
		if err != nil {
			return err
		}
		rows = rows[:0]
		if len(body) == 0 {
			return nil
		}
		if err := json.Unmarshal(body, &rows); err != nil {
			return fmt.Errorf("decode bill types: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, c.unavailable(err)
	}

	seen := make(map[domain.BillType]bool, len(rows))
	for _, r := range rows {
		seen[domain.BillType(r.BillType)] = true
	}
	types := make([]domain.BillType, 0, len(seen))
	for _, t := range domain.BillTypes {
		if seen[t] {
			types = append(types, t)
		}
	}
	return types, nil
}
