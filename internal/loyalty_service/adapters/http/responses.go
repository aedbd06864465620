package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/rewardhub/loyalty_services/internal/loyalty_service/domain"
)

// MaxRequestBodySize caps JSON and webhook bodies.
const MaxRequestBodySize = 1 << 20 // 1 MB

// NewValidator returns a validator that reports fields by their JSON names.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// responder writes JSON bodies and maps domain errors onto status codes.
type responder struct {
	logger          *slog.Logger
	validate        *validator.Validate
	signatureStatus int
}

func (rs *responder) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		rs.logger.Warn("Failed to write response body", "error", err)
	}
}

// decode reads a JSON body into dst and validates it. It writes the error response
// itself and returns false when the request cannot proceed.
func (rs *responder) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			rs.writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: "Request body too large"})
		case errors.Is(err, io.EOF):
			rs.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Request body is empty"})
		default:
			rs.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request payload"})
		}
		return false
	}
	return rs.check(w, r, dst)
}

// decodeOptional is decode for endpoints whose body may be omitted entirely.
func (rs *responder) decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		rs.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request payload"})
		return false
	}
	return rs.check(w, r, dst)
}

func (rs *responder) check(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := rs.validate.StructCtx(r.Context(), dst); err != nil {
		rs.writeError(w, r, validationError(err))
		return false
	}
	return true
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return domain.NewValidationError("body", err.Error())
	}
	out := &domain.ValidationError{}
	for _, fe := range verrs {
		out.Add(fe.Field(), describeTag(fe))
	}
	return out
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "url":
		return "must be an absolute URL"
	case "gte", "min":
		return "must be at least " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "lte", "max":
		return "must be at most " + fe.Param()
	}
	return "is invalid"
}

// writeError maps err to a status code. Unknown errors become a generic 500 so no
// internal detail leaks to the caller.
func (rs *responder) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	logger := rs.logger.With("request_id", chi_middleware.GetReqID(ctx), "path", r.URL.Path)

	var (
		verr *domain.ValidationError
		terr *domain.ThresholdNotMetError
		perr *domain.PermissionError
		xerr *domain.ExternalServiceError
	)
	switch {
	case errors.As(err, &verr):
		logger.InfoContext(ctx, "Request rejected by validation", "error", err)
		rs.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Validation failed", Fields: verr.Fields})
	case errors.As(err, &terr):
		shortfall := terr.ShortfallPaise()
		rs.writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: terr.Error(), ShortfallPaise: &shortfall})
	case errors.Is(err, domain.ErrInsufficientBalance):
		rs.writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: "Insufficient balance"})
	case errors.Is(err, domain.ErrNotFound):
		rs.writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "Resource not found"})
	case errors.As(err, &perr):
		logger.WarnContext(ctx, "Permission denied", "error", err)
		rs.writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "Permission denied"})
	case errors.Is(err, domain.ErrSignatureInvalid):
		rs.writeJSON(w, rs.signatureStatus, ErrorResponse{Error: "Webhook signature verification failed"})
	case errors.Is(err, domain.ErrInvalidStatusTransition):
		rs.writeJSON(w, http.StatusConflict, ErrorResponse{Error: "Request is not pending"})
	case errors.Is(err, domain.ErrReferralCycle):
		rs.writeJSON(w, http.StatusConflict, ErrorResponse{Error: "Referral assignment would create a cycle"})
	case errors.As(err, &xerr):
		logger.ErrorContext(ctx, "Payment gateway call failed", "error", err)
		rs.writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: "Payment gateway unavailable, please retry"})
	default:
		logger.ErrorContext(ctx, "Unhandled error", "error", err)
		rs.writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
	}
}
