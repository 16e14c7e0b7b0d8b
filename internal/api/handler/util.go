package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ayo6706/creator-payouts/internal/api/middleware"
	"github.com/ayo6706/creator-payouts/internal/api/problem"
	"github.com/ayo6706/creator-payouts/internal/models"
	"github.com/ayo6706/creator-payouts/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// RespondError writes an error response.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	if problemType != "" && problemType != "about:blank" && !strings.HasPrefix(problemType, "http") {
		problemType = problem.Type(problemType)
	}
	problem.Write(w, r, status, problemType, http.StatusText(status), message)
}

func requestActor(r *http.Request) (uuid.UUID, bool, error) {
	creatorID := middleware.CreatorIDFromContext(r.Context())
	if creatorID == "" {
		return uuid.Nil, false, errors.New("missing creator in auth context")
	}

	actorID, err := uuid.Parse(creatorID)
	if err != nil {
		return uuid.Nil, false, errors.New("invalid creator_id in auth context")
	}

	return actorID, middleware.RoleFromContext(r.Context()) == "admin", nil
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, name))
}

func isValidation(err error) bool {
	var v *service.ValidationError
	return errors.As(err, &v)
}

// respondServiceError maps service and repository errors to problem responses.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var eligibility *service.EligibilityError
	switch {
	case errors.As(err, &eligibility):
		problem.WriteWithReasons(w, r, http.StatusUnprocessableEntity,
			problem.Type("payouts/not-eligible"), http.StatusText(http.StatusUnprocessableEntity),
			"payout request is not eligible", eligibility.Result.Reasons)
	case errors.Is(err, models.ErrInsufficientBalance):
		RespondError(w, r, http.StatusUnprocessableEntity, "ledger/insufficient-balance", "available balance does not cover the requested amount")
	case errors.Is(err, service.ErrCancelNotAllowed):
		RespondError(w, r, http.StatusConflict, "payouts/cancel-not-allowed", "payout can only be cancelled while pending")
	case errors.Is(err, models.ErrLedgerNotFound):
		RespondError(w, r, http.StatusNotFound, "ledger/not-found", "no ledger exists for this creator")
	case errors.Is(err, models.ErrPayoutNotFound):
		RespondError(w, r, http.StatusNotFound, "payouts/not-found", "payout request not found")
	case errors.Is(err, models.ErrBankAccountNotFound):
		RespondError(w, r, http.StatusNotFound, "bank-accounts/not-found", "no bank account on file for this creator")
	case errors.Is(err, models.ErrAnomalyNotFound):
		RespondError(w, r, http.StatusNotFound, "anomalies/not-found", "anomaly not found")
	default:
		if status, problemType, message, ok := mapDBError(err); ok {
			RespondError(w, r, status, problemType, message)
			return
		}
		RespondError(w, r, http.StatusInternalServerError, "internal-server-error", "unexpected server error")
	}
}

func mapDBError(err error) (status int, problemType, message string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return 0, "", "", false
	}

	switch pgErr.Code {
	case "23505": // unique_violation
		return http.StatusConflict, "db/unique-violation", "resource already exists", true
	case "23503": // foreign_key_violation
		return http.StatusBadRequest, "db/foreign-key-violation", "invalid reference", true
	case "23514": // check_violation
		return http.StatusBadRequest, "db/check-violation", "request violates data constraints", true
	case "23502": // not_null_violation
		return http.StatusBadRequest, "db/not-null-violation", "missing required field", true
	default:
		return 0, "", "", false
	}
}
