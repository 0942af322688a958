package handler

import (
	"net/http"

	"github.com/boddenberg/utility-bills-bfa/internal/domain"
	"github.com/boddenberg/utility-bills-bfa/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Bills
// ============================================================

func listBillsHandler(svc *service.BillService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/bills")
		defer span.End()

		ownerID := OwnerIDFromContext(ctx)
		span.SetAttributes(attribute.String("owner.id", ownerID))

		bills, err := svc.ListBills(ctx, ownerID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if bills == nil {
			bills = []domain.BillRecord{}
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"bills": bills,
			"total": len(bills),
		})
	}
}

func createBillHandler(svc *service.BillService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/bills")
		defer span.End()

		var req domain.CreateBillRequest
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		bill, err := svc.CreateBill(ctx, OwnerIDFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, bill)
	}
}

func updateBillHandler(svc *service.BillService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/bills/{billId}")
		defer span.End()

		billID := chi.URLParam(r, "billId")
		span.SetAttributes(attribute.String("bill.id", billID))

		var req domain.UpdateBillRequest
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		bill, err := svc.UpdateBill(ctx, OwnerIDFromContext(ctx), billID, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, bill)
	}
}

func latestBillHandler(svc *service.BillService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/bills/latest")
		defer span.End()

		bill, err := svc.LatestBill(ctx, OwnerIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, bill)
	}
}

func existingBillTypesHandler(svc *service.BillService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/bills/existing-types")
		defer span.End()

		month, err := queryInt(r, "month")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		year, err := queryInt(r, "year")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		resp, err := svc.ExistingBillTypes(ctx, OwnerIDFromContext(ctx), month, year)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}
