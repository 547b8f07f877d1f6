package orders

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/angelmondragon/voicecommerce-backend/pkg/config"
	"github.com/angelmondragon/voicecommerce-backend/pkg/enums"
)

func defaultDelivery() config.DeliveryConfig {
	return config.DeliveryConfig{
		BaseFee:               3000,
		FreeDistanceKM:        5,
		DistanceStepKM:        2,
		DistanceStepFee:       1000,
		FreeWeightKG:          5,
		WeightStepKG:          2,
		WeightStepFee:         500,
		ItemWeightKG:          0.5,
		PeakSurcharge:         1000,
		FreeDeliveryThreshold: 30000,
		ThresholdDiscount:     2000,
		TaxRatePercent:        10,
	}
}

func TestQuoteFee(t *testing.T) {
	offPeak := time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC)
	lunch := time.Date(2026, 3, 4, 12, 30, 0, 0, time.UTC)
	dinnerEdge := time.Date(2026, 3, 4, 20, 0, 0, 0, time.UTC)

	cases := []struct {
		name     string
		km       float64
		items    int
		subtotal int64
		at       time.Time
		fee      int64
		minutes  int
	}{
		{name: "one distance step", km: 7, items: 2, subtotal: 9000, at: offPeak, fee: 4000, minutes: 35},
		{name: "threshold discount", km: 7, items: 2, subtotal: 35000, at: offPeak, fee: 2000, minutes: 35},
		{name: "within free distance", km: 4.9, items: 1, subtotal: 9000, at: offPeak, fee: 3000, minutes: 30},
		{name: "started step counts", km: 5.1, items: 1, subtotal: 9000, at: offPeak, fee: 4000, minutes: 35},
		{name: "two distance steps", km: 9, items: 1, subtotal: 9000, at: offPeak, fee: 5000, minutes: 40},
		{name: "heavy order", km: 1, items: 12, subtotal: 9000, at: offPeak, fee: 3500, minutes: 30},
		{name: "lunch peak", km: 7, items: 2, subtotal: 9000, at: lunch, fee: 5000, minutes: 45},
		{name: "dinner window is end-exclusive", km: 1, items: 1, subtotal: 9000, at: dinnerEdge, fee: 3000, minutes: 30},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q := QuoteFee(defaultDelivery(), tc.km, tc.items, tc.subtotal, tc.at)
			if q.Fee != tc.fee {
				t.Fatalf("expected fee %d, got %d (%+v)", tc.fee, q.Fee, q.Breakdown)
			}
			if q.EstimatedMinutes != tc.minutes {
				t.Fatalf("expected %d minutes, got %d", tc.minutes, q.EstimatedMinutes)
			}
		})
	}
}

func TestQuoteFeeThresholdFloorsAtZero(t *testing.T) {
	cfg := defaultDelivery()
	cfg.BaseFee = 1500
	q := QuoteFee(cfg, 0, 1, 50000, time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC))
	if q.Fee != 0 {
		t.Fatalf("expected fee floored at zero, got %d", q.Fee)
	}
	if q.Breakdown.ThresholdDiscount != 1500 {
		t.Fatalf("expected discount capped at the fee, got %d", q.Breakdown.ThresholdDiscount)
	}
}

func TestQuoteFeeIsDeterministic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	cfg := defaultDelivery()
	day := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)

	properties.Property("same inputs give the same quote and fees stay in range", prop.ForAll(
		func(km float64, items int, subtotal int64, minute int) bool {
			at := day.Add(time.Duration(minute) * time.Minute)
			a := QuoteFee(cfg, km, items, subtotal, at)
			b := QuoteFee(cfg, km, items, subtotal, at)
			if a != b {
				return false
			}
			if a.Fee < 0 {
				return false
			}
			gross := a.Breakdown.Base + a.Breakdown.Distance + a.Breakdown.Weight + a.Breakdown.Peak
			if a.Fee != gross-a.Breakdown.ThresholdDiscount {
				return false
			}
			return a.EstimatedMinutes >= baseDeliveryMinutes
		},
		gen.Float64Range(0, 40),
		gen.IntRange(0, 60),
		gen.Int64Range(0, 100000),
		gen.IntRange(0, 24*60-1),
	))

	properties.TestingRun(t)
}

func TestStatusGraph(t *testing.T) {
	allowed := map[enums.OrderStatus][]enums.OrderStatus{
		enums.OrderStatusCreated:   {enums.OrderStatusConfirmed, enums.OrderStatusCancelled},
		enums.OrderStatusConfirmed: {enums.OrderStatusPreparing, enums.OrderStatusCancelled},
		enums.OrderStatusPreparing: {enums.OrderStatusReady, enums.OrderStatusCancelled},
		enums.OrderStatusReady:     {enums.OrderStatusInTransit, enums.OrderStatusCompleted, enums.OrderStatusCancelled},
		enums.OrderStatusInTransit: {enums.OrderStatusDelivered, enums.OrderStatusCancelled},
		enums.OrderStatusDelivered: {enums.OrderStatusCompleted},
	}
	all := []enums.OrderStatus{
		enums.OrderStatusCreated, enums.OrderStatusConfirmed, enums.OrderStatusPreparing, enums.OrderStatusReady,
		enums.OrderStatusInTransit, enums.OrderStatusDelivered, enums.OrderStatusCompleted, enums.OrderStatusCancelled,
	}
	for _, from := range all {
		for _, to := range all {
			want := false
			for _, next := range allowed[from] {
				if next == to {
					want = true
				}
			}
			if got := CanTransition(from, to); got != want {
				t.Fatalf("%s -> %s: expected %v, got %v", from, to, want, got)
			}
		}
	}
	if len(NextStatuses(enums.OrderStatusCompleted)) != 0 || len(NextStatuses(enums.OrderStatusCancelled)) != 0 {
		t.Fatalf("terminal statuses must have no exits")
	}
}

func TestVATRoundsHalfUp(t *testing.T) {
	cases := map[int64]int64{9000: 900, 8105: 811, 8104: 810, 0: 0, -5: 0}
	for amount, want := range cases {
		if got := vat(amount, 10); got != want {
			t.Fatalf("vat(%d): expected %d, got %d", amount, want, got)
		}
	}
}
