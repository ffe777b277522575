package orders

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-engine/api/middleware"
	"github.com/angelmondragon/marketplace-engine/api/responses"
	"github.com/angelmondragon/marketplace-engine/api/validators"
	"github.com/angelmondragon/marketplace-engine/internal/delivery"
	"github.com/angelmondragon/marketplace-engine/internal/ledger"
	internalorders "github.com/angelmondragon/marketplace-engine/internal/orders"
	"github.com/angelmondragon/marketplace-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-engine/pkg/errors"
	"github.com/angelmondragon/marketplace-engine/pkg/logger"
)

const maxNoteLength = 500

type placeOrderItemRequest struct {
	ProductID      uuid.UUID `json:"productId" validate:"required"`
	CompanyID      uuid.UUID `json:"companyId" validate:"required"`
	UnitPriceCents int64     `json:"unitPriceCents" validate:"min=0"`
	Quantity       int64     `json:"quantity" validate:"min=1"`
	DiscountCents  int64     `json:"discountCents" validate:"min=0"`
}

type placeOrderRequest struct {
	CustomerID       *uuid.UUID              `json:"customerId"`
	Zone             string                  `json:"zone" validate:"required,max=64"`
	PaymentMethod    string                  `json:"paymentMethod" validate:"required"`
	DeliveryFeeCents int64                   `json:"deliveryFeeCents" validate:"min=0"`
	Items            []placeOrderItemRequest `json:"items" validate:"required,min=1,dive"`
}

type transitionRequest struct {
	Status string  `json:"status" validate:"required"`
	Note   *string `json:"note"`
}

type bulkTransitionRequest struct {
	OrderIDs []uuid.UUID `json:"orderIds" validate:"required,min=1,max=100"`
	Status   string      `json:"status" validate:"required"`
	Note     *string     `json:"note"`
}

type assignDriverRequest struct {
	DriverID uuid.UUID `json:"driverId" validate:"required"`
	Note     *string   `json:"note"`
}

type cashCollectionRequest struct {
	AmountCents int64      `json:"amountCents" validate:"min=0"`
	CollectedBy *uuid.UUID `json:"collectedBy"`
	Notes       *string    `json:"notes"`
}

// Place creates a pending order with its item snapshots.
func Place(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		principal, err := middleware.RequirePrincipal(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload placeOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		method, err := enums.ParsePaymentMethod(payload.PaymentMethod)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
			return
		}

		input := internalorders.PlaceOrderInput{
			CustomerID:       payload.CustomerID,
			Zone:             validators.SanitizeString(payload.Zone, 64),
			PaymentMethod:    method,
			DeliveryFeeCents: payload.DeliveryFeeCents,
			Items:            make([]internalorders.ItemInput, 0, len(payload.Items)),
		}
		for _, item := range payload.Items {
			input.Items = append(input.Items, internalorders.ItemInput{
				ProductID:      item.ProductID,
				CompanyID:      item.CompanyID,
				UnitPriceCents: item.UnitPriceCents,
				Quantity:       item.Quantity,
				DiscountCents:  item.DiscountCents,
			})
		}

		order, err := svc.PlaceOrder(r.Context(), principal, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newOrderView(order))
	}
}

// Tracking returns the progress view of one order.
func Tracking(svc delivery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "delivery service unavailable"))
			return
		}
		principal, err := middleware.RequirePrincipal(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		tracking, err := svc.Tracking(r.Context(), principal, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, tracking)
	}
}

// Transition moves an order to the requested status.
func Transition(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		principal, err := middleware.RequirePrincipal(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload transitionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseOrderStatus(payload.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		order, err := svc.Transition(r.Context(), principal, internalorders.TransitionInput{
			OrderID: orderID,
			Status:  status,
			Note:    sanitizeNote(payload.Note),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderView(order))
	}
}

// BulkTransition applies one status to many orders and reports per-order failures.
func BulkTransition(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		principal, err := middleware.RequirePrincipal(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload bulkTransitionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseOrderStatus(payload.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		result, err := svc.BulkTransition(r.Context(), principal, internalorders.BulkTransitionInput{
			OrderIDs: payload.OrderIDs,
			Status:   status,
			Note:     sanitizeNote(payload.Note),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AssignDriver hands a preparing order to a driver and stamps its ETA.
func AssignDriver(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		principal, err := middleware.RequirePrincipal(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload assignDriverRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.AssignDriver(r.Context(), principal, internalorders.AssignDriverInput{
			OrderID:  orderID,
			DriverID: payload.DriverID,
			Note:     sanitizeNote(payload.Note),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderView(order))
	}
}

// RecordCash stores the cash handed over for a delivered COD order. Drivers
// always record cash as collected by themselves.
func RecordCash(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}
		principal, err := middleware.RequirePrincipal(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload cashCollectionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		collectedBy := principal.UserID
		if payload.CollectedBy != nil && principal.IsOperator() {
			collectedBy = *payload.CollectedBy
		}

		collection, err := svc.RecordCashCollection(r.Context(), principal, ledger.RecordCashInput{
			OrderID:     orderID,
			AmountCents: payload.AmountCents,
			CollectedBy: collectedBy,
			Notes:       sanitizeNote(payload.Notes),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newCashCollectionView(collection))
	}
}

func sanitizeNote(note *string) *string {
	if note == nil {
		return nil
	}
	trimmed := validators.SanitizeString(*note, maxNoteLength)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
