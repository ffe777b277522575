package payouts

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-engine/api/middleware"
	"github.com/angelmondragon/marketplace-engine/api/responses"
	"github.com/angelmondragon/marketplace-engine/api/validators"
	internalpayouts "github.com/angelmondragon/marketplace-engine/internal/payouts"
	"github.com/angelmondragon/marketplace-engine/pkg/db/models"
	"github.com/angelmondragon/marketplace-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-engine/pkg/errors"
	"github.com/angelmondragon/marketplace-engine/pkg/logger"
	"github.com/angelmondragon/marketplace-engine/pkg/pagination"
)

const maxNotesLength = 1000

type bankDetailsRequest struct {
	AccountName   string `json:"accountName" validate:"max=128"`
	AccountNumber string `json:"accountNumber" validate:"max=64"`
	BankName      string `json:"bankName" validate:"max=128"`
}

type createRequest struct {
	CompanyID      *uuid.UUID          `json:"companyId"`
	AmountCents    int64               `json:"amountCents" validate:"gt=0"`
	Method         string              `json:"method" validate:"required"`
	BankDetails    *bankDetailsRequest `json:"bankDetails"`
	OrdersIncluded []uuid.UUID         `json:"ordersIncluded" validate:"max=500"`
	Notes          *string             `json:"notes"`
}

type updateRequest struct {
	Status string  `json:"status" validate:"required"`
	Notes  *string `json:"notes"`
}

type bulkApproveRequest struct {
	PayoutIDs []uuid.UUID `json:"payoutIds" validate:"required,min=1,max=100"`
}

// Create requests a payout against the company's available balance. Vendors
// default to their own company.
func Create(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}
		principal, err := middleware.RequirePrincipal(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		method, err := enums.ParsePayoutMethod(payload.Method)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payout method"))
			return
		}

		companyID := payload.CompanyID
		if companyID == nil {
			companyID = principal.CompanyID
		}
		if companyID == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "companyId is required").WithDetails(map[string]any{"field": "companyId"}))
			return
		}

		input := internalpayouts.CreateInput{
			CompanyID:      *companyID,
			AmountCents:    payload.AmountCents,
			Method:         method,
			OrdersIncluded: payload.OrdersIncluded,
			Notes:          sanitizeNotes(payload.Notes),
		}
		if payload.BankDetails != nil {
			input.BankDetails = &models.BankDetails{
				AccountName:   payload.BankDetails.AccountName,
				AccountNumber: payload.BankDetails.AccountNumber,
				BankName:      payload.BankDetails.BankName,
			}
		}

		payout, err := svc.CreatePayout(r.Context(), principal, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newPayoutView(*payout))
	}
}

// List pages payouts newest first.
func List(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}
		companyID, err := scopedCompany(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params := internalpayouts.ListParams{
			CompanyID: companyID,
			Limit:     limit,
			Cursor:    strings.TrimSpace(r.URL.Query().Get("cursor")),
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParsePayoutStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			params.Status = &status
		}

		page, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, pagination.Map(page, newPayoutView))
	}
}

// Balance reports available, in-flight and paid-out amounts for one company.
func Balance(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}
		companyID, err := scopedCompany(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if companyID == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "companyId is required").WithDetails(map[string]any{"field": "companyId"}))
			return
		}

		balance, err := svc.Balance(r.Context(), *companyID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, balance)
	}
}

// UpdateStatus advances a payout along pending -> processing -> completed.
func UpdateStatus(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}
		principal, err := middleware.RequirePrincipal(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payoutID, err := validators.ParseUUIDParam(r, "payoutId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParsePayoutStatus(payload.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		payout, err := svc.UpdateStatus(r.Context(), principal, internalpayouts.UpdateStatusInput{
			PayoutID: payoutID,
			Status:   status,
			Notes:    sanitizeNotes(payload.Notes),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPayoutView(*payout))
	}
}

// BulkApprove moves many pending payouts to processing.
func BulkApprove(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}
		principal, err := middleware.RequirePrincipal(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload bulkApproveRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.BulkApprove(r.Context(), principal, payload.PayoutIDs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func scopedCompany(r *http.Request) (*uuid.UUID, error) {
	principal, err := middleware.RequirePrincipal(r.Context())
	if err != nil {
		return nil, err
	}
	requested, err := validators.ParseQueryUUID(r, "companyId")
	if err != nil {
		return nil, err
	}
	scoped, ok := principal.ScopeCompany(requested)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "company not accessible")
	}
	return scoped, nil
}

func sanitizeNotes(notes *string) *string {
	if notes == nil {
		return nil
	}
	trimmed := validators.SanitizeString(*notes, maxNotesLength)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
