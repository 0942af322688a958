package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/boddenberg/utility-bills-bfa/internal/domain"

	"go.uber.org/zap"
)

// ============================================================
// Shared helper functions
// ============================================================

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &domain.ErrValidation{Field: "body", Message: "invalid request body"}
	}
	return nil
}

// queryInt parses a required integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, &domain.ErrValidation{Field: name, Message: "required"}
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &domain.ErrValidation{Field: name, Message: fmt.Sprintf("must be an integer, got %q", raw)}
	}
	return v, nil
}

// queryCriteria reads billType, month (0-11) and year. Range checks are left
// to the report package.
func queryCriteria(r *http.Request) (domain.ReportCriteria, error) {
	month, err := queryInt(r, "month")
	if err != nil {
		return domain.ReportCriteria{}, err
	}
	year, err := queryInt(r, "year")
	if err != nil {
		return domain.ReportCriteria{}, err
	}
	billType := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("billType")))
	return domain.ReportCriteria{BillType: domain.BillType(billType), Month: month, Year: year}, nil
}

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var notFound *domain.ErrNotFound
	var invalidCriteria *domain.ErrInvalidCriteria
	var validation *domain.ErrValidation
	var unauthorized *domain.ErrUnauthorized
	var conflict *domain.ErrConflict
	var circuitOpen *domain.ErrCircuitOpen
	var storeUnavailable *domain.ErrStoreUnavailable
	var timeout *domain.ErrTimeout
	var upstream *domain.ErrUpstream
	var external *domain.ErrExternalService

	switch {
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: validation.Message, Field: validation.Field})
	case errors.As(err, &invalidCriteria):
		logger.Debug("invalid report criteria", zap.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: invalidCriteria.Reason, Field: invalidCriteria.Field})
	case errors.As(err, &notFound):
		logger.Debug("not found", zap.String("error", err.Error()))
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &unauthorized):
		logger.Warn("unauthorized", zap.String("error", err.Error()))
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.As(err, &conflict):
		logger.Debug("conflict", zap.String("error", err.Error()))
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &circuitOpen):
		logger.Error("circuit breaker open", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
	case errors.As(err, &storeUnavailable):
		logger.Error("bill store unavailable", zap.String("store", storeUnavailable.Store), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "bill store unavailable")
	case errors.As(err, &timeout):
		logger.Error("request timeout", zap.Error(err))
		writeError(w, http.StatusGatewayTimeout, err.Error())
	case errors.As(err, &upstream):
		logger.Error("upstream failure", zap.String("provider", upstream.Provider), zap.Error(err))
		writeError(w, http.StatusBadGateway, "summary provider unavailable")
	case errors.As(err, &external):
		logger.Error("external service failure", zap.String("service", external.Service), zap.Error(err))
		writeError(w, http.StatusBadGateway, "external service unavailable")
	case errors.Is(err, context.Canceled):
		logger.Debug("request cancelled by client")
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
