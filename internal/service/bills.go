package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/boddenberg/utility-bills-bfa/internal/domain"
	"github.com/boddenberg/utility-bills-bfa/internal/infra/observability"
	"github.com/boddenberg/utility-bills-bfa/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("service/bills")

// BillService validates bill input and keeps a per-owner cache of the bill list.
type BillService struct {
	store   port.BillStore
	cache   port.Cache[[]domain.BillRecord]
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewBillService creates the bill service with all dependencies injected.
func NewBillService(store port.BillStore, cache port.Cache[[]domain.BillRecord], metrics *observability.Metrics, logger *zap.Logger) *BillService {
	return &BillService{
		store:   store,
		cache:   cache,
		metrics: metrics,
		logger:  logger,
	}
}

func billsCacheKey(ownerID string) string {
	return "bills:" + ownerID
}

// ListBills returns the owner's bills ordered by date. The slice may be shared
// with the cache and must not be modified.
func (s *BillService) ListBills(ctx context.Context, ownerID string) ([]domain.BillRecord, error) {
	ctx, span := tracer.Start(ctx, "BillService.ListBills")
	defer span.End()
	span.SetAttributes(attribute.String("owner.id", ownerID))

	key := billsCacheKey(ownerID)
	if bills, ok := s.cache.Get(key); ok {
		s.metrics.IncrCacheHit("bills")
		return bills, nil
	}
	s.metrics.IncrCacheMiss("bills")

	start := time.Now()
	bills, err := s.store.ListBills(ctx, ownerID)
	s.metrics.RecordRequestDuration("store_list", time.Since(start))
	if err != nil {
		s.logger.Error("failed to list bills",
			zap.String("owner_id", ownerID),
			zap.Error(err),
		)
		s.metrics.IncrExternalError("bill_store")
		return nil, fmt.Errorf("list bills: %w", err)
	}

	s.cache.Set(key, bills)
	return bills, nil
}

// CreateBill validates req and stores a new bill for the owner.
func (s *BillService) CreateBill(ctx context.Context, ownerID string, req *domain.CreateBillRequest) (*domain.BillRecord, error) {
	ctx, span := tracer.Start(ctx, "BillService.CreateBill")
	defer span.End()

	in, err := validateCreate(req)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("bill.type", string(in.BillType)))

	bill, err := s.store.CreateBill(ctx, ownerID, in)
	if err != nil {
		s.metrics.IncrBillWrite("create", "error")
		s.logger.Error("failed to create bill",
			zap.String("owner_id", ownerID),
			zap.String("bill_type", string(in.BillType)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("create bill: %w", err)
	}

	s.metrics.IncrBillWrite("create", "ok")
	s.cache.Delete(billsCacheKey(ownerID))
	s.logger.Info("bill created",
		zap.String("owner_id", ownerID),
		zap.String("bill_id", bill.ID),
		zap.String("bill_type", string(bill.BillType)),
	)
	return bill, nil
}

// UpdateBill applies a partial update to one of the owner's bills.
func (s *BillService) UpdateBill(ctx context.Context, ownerID, billID string, req *domain.UpdateBillRequest) (*domain.BillRecord, error) {
	ctx, span := tracer.Start(ctx, "BillService.UpdateBill")
	defer span.End()
	span.SetAttributes(attribute.String("bill.id", billID))

	if strings.TrimSpace(billID) == "" {
		return nil, &domain.ErrValidation{Field: "billId", Message: "required"}
	}
	patch, err := validatePatch(req)
	if err != nil {
		return nil, err
	}

	bill, err := s.store.UpdateBill(ctx, ownerID, billID, patch)
	if err != nil {
		s.metrics.IncrBillWrite("update", "error")
		return nil, fmt.Errorf("update bill: %w", err)
	}

	s.metrics.IncrBillWrite("update", "ok")
	s.cache.Delete(billsCacheKey(ownerID))
	s.logger.Info("bill updated",
		zap.String("owner_id", ownerID),
		zap.String("bill_id", bill.ID),
	)
	return bill, nil
}

// LatestBill returns the owner's most recent bill.
func (s *BillService) LatestBill(ctx context.Context, ownerID string) (*domain.BillRecord, error) {
	ctx, span := tracer.Start(ctx, "BillService.LatestBill")
	defer span.End()

	bill, err := s.store.LatestBill(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("latest bill: %w", err)
	}
	return bill, nil
}

// ExistingBillTypes lists the bill types already recorded for a month.
func (s *BillService) ExistingBillTypes(ctx context.Context, ownerID string, month, year int) (*domain.ExistingBillTypesResponse, error) {
	ctx, span := tracer.Start(ctx, "BillService.ExistingBillTypes")
	defer span.End()

	if month < 0 || month > 11 {
		return nil, &domain.ErrValidation{Field: "month", Message: "must be between 0 and 11"}
	}
	if year < 1 || year > 9999 {
		return nil, &domain.ErrValidation{Field: "year", Message: "must be between 1 and 9999"}
	}

	types, err := s.store.ExistingBillTypes(ctx, ownerID, month, year)
	if err != nil {
		return nil, fmt.Errorf("existing bill types: %w", err)
	}
	return &domain.ExistingBillTypesResponse{Month: month, Year: year, BillTypes: types}, nil
}

// Ping probes the bill store.
func (s *BillService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// ============================================================
// Validation
// ============================================================

func validateCreate(req *domain.CreateBillRequest) (*domain.BillInput, error) {
	if req == nil {
		return nil, &domain.ErrValidation{Field: "body", Message: "required"}
	}
	billType, err := parseBillType(req.BillType)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Date) == "" {
		return nil, &domain.ErrValidation{Field: "date", Message: "required"}
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return nil, err
	}
	if err := nonNegative("usage", req.Usage); err != nil {
		return nil, err
	}
	if err := nonNegative("cost", req.Cost); err != nil {
		return nil, err
	}
	if req.GoalUsage != nil {
		if err := nonNegative("goalUsage", *req.GoalUsage); err != nil {
			return nil, err
		}
	}

	return &domain.BillInput{
		BillType:  billType,
		Date:      date,
		Usage:     req.Usage,
		Cost:      req.Cost,
		GoalUsage: req.GoalUsage,
	}, nil
}

func validatePatch(req *domain.UpdateBillRequest) (*domain.BillPatch, error) {
	if req == nil {
		return nil, &domain.ErrValidation{Field: "body", Message: "required"}
	}

	patch := &domain.BillPatch{
		Usage:     req.Usage,
		Cost:      req.Cost,
		GoalUsage: req.GoalUsage,
	}
	if req.BillType != nil {
		t, err := parseBillType(*req.BillType)
		if err != nil {
			return nil, err
		}
		patch.BillType = &t
	}
	if req.Date != nil {
		d, err := parseDate(*req.Date)
		if err != nil {
			return nil, err
		}
		patch.Date = &d
	}
	numbers := []struct {
		field string
		v     *float64
	}{{"usage", req.Usage}, {"cost", req.Cost}, {"goalUsage", req.GoalUsage}}
	for _, n := range numbers {
		if n.v == nil {
			continue
		}
		if err := nonNegative(n.field, *n.v); err != nil {
			return nil, err
		}
	}

	if patch.IsEmpty() {
		return nil, &domain.ErrValidation{Field: "body", Message: "no fields to update"}
	}
	return patch, nil
}

func parseBillType(s string) (domain.BillType, error) {
	t, err := domain.ParseBillType(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return "", &domain.ErrValidation{Field: "billType", Message: "must be one of water, gas, electricity"}
	}
	return t, nil
}

func parseDate(s string) (time.Time, error) {
	d, err := domain.ParseBillDate(strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, &domain.ErrValidation{Field: "date", Message: "must be a date in YYYY-MM-DD format"}
	}
	return d, nil
}

// maxQuantity bounds usage, cost and goal so window sums stay exact.
const maxQuantity = 1e12

func nonNegative(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &domain.ErrValidation{Field: field, Message: "must be a finite number"}
	}
	if v < 0 {
		return &domain.ErrValidation{Field: field, Message: "must not be negative"}
	}
	if v > maxQuantity {
		return &domain.ErrValidation{Field: field, Message: "must not exceed 1e12"}
	}
	return nil
}
