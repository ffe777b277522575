package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-engine/internal/delivery"
	"github.com/angelmondragon/marketplace-engine/pkg/auth"
)

type stubDeliveryService struct {
	metricsFn func(ctx context.Context, filter delivery.MetricsFilter) (*delivery.Metrics, error)
}

func (s *stubDeliveryService) Tracking(ctx context.Context, principal auth.Principal, orderID uuid.UUID) (*delivery.Tracking, error) {
	return nil, nil
}

func (s *stubDeliveryService) Metrics(ctx context.Context, filter delivery.MetricsFilter) (*delivery.Metrics, error) {
	return s.metricsFn(ctx, filter)
}

func TestDeliveryMetricsParsesFilters(t *testing.T) {
	driverID := uuid.New()
	svc := &stubDeliveryService{
		metricsFn: func(ctx context.Context, filter delivery.MetricsFilter) (*delivery.Metrics, error) {
			if filter.From == nil || filter.To != nil || filter.Zone != "north" {
				t.Fatalf("unexpected filter %+v", filter)
			}
			if filter.DriverID == nil || *filter.DriverID != driverID {
				t.Fatalf("expected driver filter")
			}
			return &delivery.Metrics{DeliveredCount: 4, OnTimeCount: 3, WithEstimateCount: 4, OnTimeRate: 0.75}, nil
		},
	}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/delivery/metrics?from=2026-01-01&zone=north&driverId="+driverID.String(), nil)
	resp := httptest.NewRecorder()
	DeliveryMetrics(svc, testLogger())(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestDeliveryMetricsRejectsBadDriver(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/delivery/metrics?driverId=abc", nil)
	resp := httptest.NewRecorder()
	DeliveryMetrics(&stubDeliveryService{}, testLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
