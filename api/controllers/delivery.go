package controllers

import (
	"net/http"

	"github.com/angelmondragon/marketplace-engine/api/responses"
	"github.com/angelmondragon/marketplace-engine/api/validators"
	"github.com/angelmondragon/marketplace-engine/internal/delivery"
	pkgerrors "github.com/angelmondragon/marketplace-engine/pkg/errors"
	"github.com/angelmondragon/marketplace-engine/pkg/logger"
)

// DeliveryMetrics reports on-time performance over delivered orders.
func DeliveryMetrics(svc delivery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "delivery service unavailable"))
			return
		}

		from, err := validators.ParseQueryTime(r, "from")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		to, err := validators.ParseQueryTime(r, "to")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		driverID, err := validators.ParseQueryUUID(r, "driverId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Metrics(r.Context(), delivery.MetricsFilter{
			From:     from,
			To:       to,
			Zone:     validators.QueryString(r, "zone", 64),
			DriverID: driverID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
