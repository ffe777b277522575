package settlements

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-engine/api/middleware"
	"github.com/angelmondragon/marketplace-engine/api/responses"
	"github.com/angelmondragon/marketplace-engine/api/validators"
	"github.com/angelmondragon/marketplace-engine/internal/ledger"
	internalsettlements "github.com/angelmondragon/marketplace-engine/internal/settlements"
	"github.com/angelmondragon/marketplace-engine/pkg/auth"
	"github.com/angelmondragon/marketplace-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-engine/pkg/errors"
	"github.com/angelmondragon/marketplace-engine/pkg/logger"
	"github.com/angelmondragon/marketplace-engine/pkg/pagination"
)

const maxNotesLength = 1000

type createRequest struct {
	CompanyID   uuid.UUID `json:"companyId" validate:"required"`
	PeriodStart time.Time `json:"periodStart" validate:"required"`
	PeriodEnd   time.Time `json:"periodEnd" validate:"required"`
	Notes       *string   `json:"notes"`
}

type verifyRequest struct {
	Notes *string `json:"notes"`
}

// Create aggregates a company's delivered orders for a period into a pending settlement.
func Create(svc internalsettlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlements service unavailable"))
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

		settlement, err := svc.CreateSettlement(r.Context(), principal, internalsettlements.CreateInput{
			CompanyID:   payload.CompanyID,
			PeriodStart: payload.PeriodStart.UTC(),
			PeriodEnd:   payload.PeriodEnd.UTC(),
			Notes:       sanitizeNotes(payload.Notes),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newSettlementView(*settlement))
	}
}

// List pages settlements newest first. Vendors only see their own company.
func List(svc internalsettlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlements service unavailable"))
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

		params := internalsettlements.ListParams{
			CompanyID: companyID,
			Limit:     limit,
			Cursor:    strings.TrimSpace(r.URL.Query().Get("cursor")),
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseSettlementStatus(raw)
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
		responses.WriteSuccess(w, pagination.Map(page, newSettlementView))
	}
}

// Summary returns the live cash-flow dashboard for one company.
func Summary(svc internalsettlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlements service unavailable"))
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
		start, end, err := parseWindow(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		summary, err := svc.Summary(r.Context(), internalsettlements.SummaryInput{CompanyID: *companyID, Start: start, End: end})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

// Verify moves a pending settlement to verified.
func Verify(svc internalsettlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlements service unavailable"))
			return
		}
		principal, err := middleware.RequirePrincipal(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		settlementID, err := validators.ParseUUIDParam(r, "settlementId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload verifyRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		settlement, err := svc.VerifySettlement(r.Context(), principal, internalsettlements.VerifyInput{
			SettlementID: settlementID,
			Notes:        sanitizeNotes(payload.Notes),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSettlementView(*settlement))
	}
}

// PendingCash lists delivered cash orders whose collection is not recorded yet.
func PendingCash(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}
		companyID, err := scopedCompany(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		pending, err := svc.PendingCashCollections(r.Context(), companyID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if pending == nil {
			pending = []ledger.PendingCash{}
		}
		responses.WriteSuccess(w, pending)
	}
}

// Reconcile compares expected and collected cash over delivered COD orders.
func Reconcile(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}
		companyID, err := scopedCompany(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		start, end, err := parseWindow(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		report, err := svc.ReconcileCash(r.Context(), ledger.ReconcileFilter{CompanyID: companyID, Start: start, End: end})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
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
	return resolveScope(principal, requested)
}

func resolveScope(principal auth.Principal, requested *uuid.UUID) (*uuid.UUID, error) {
	scoped, ok := principal.ScopeCompany(requested)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "company not accessible")
	}
	return scoped, nil
}

func parseWindow(r *http.Request) (*time.Time, *time.Time, error) {
	start, err := validators.ParseQueryTime(r, "start")
	if err != nil {
		return nil, nil, err
	}
	end, err := validators.ParseQueryTime(r, "end")
	if err != nil {
		return nil, nil, err
	}
	return start, end, nil
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
