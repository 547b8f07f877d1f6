package orders

import (
	"math"
	"time"

	"github.com/angelmondragon/voicecommerce-backend/pkg/config"
)

const (
	baseDeliveryMinutes = 30
	minutesPerDistStep  = 5
	peakExtraMinutes    = 10
)

// peakWindows are [from, to) hours of the local clock.
var peakWindows = [][2]int{{11, 13}, {18, 20}}

// FeeBreakdown itemizes a delivery quote. Fee is the sum of the positive
// parts minus ThresholdDiscount, floored at zero.
type FeeBreakdown struct {
	Base              int64 `json:"base"`
	Distance          int64 `json:"distance"`
	Weight            int64 `json:"weight"`
	Peak              int64 `json:"peak"`
	ThresholdDiscount int64 `json:"thresholdDiscount"`
}

type DeliveryQuote struct {
	Fee              int64        `json:"fee"`
	DistanceKM       float64      `json:"distanceKm"`
	WeightKG         float64      `json:"weightKg"`
	EstimatedMinutes int          `json:"estimatedMinutes"`
	IsPeak           bool         `json:"isPeak"`
	OriginLocationID string       `json:"originLocationId,omitempty"`
	Breakdown        FeeBreakdown `json:"breakdown"`
}

// QuoteFee prices a delivery. It depends only on its arguments.
func QuoteFee(cfg config.DeliveryConfig, distanceKM float64, itemCount int, subtotal int64, at time.Time) DeliveryQuote {
	if distanceKM < 0 {
		distanceKM = 0
	}
	weight := float64(itemCount) * cfg.ItemWeightKG

	distSteps := steps(distanceKM-cfg.FreeDistanceKM, cfg.DistanceStepKM)
	weightSteps := steps(weight-cfg.FreeWeightKG, cfg.WeightStepKG)
	peak := IsPeak(at)

	b := FeeBreakdown{
		Base:     cfg.BaseFee,
		Distance: int64(distSteps) * cfg.DistanceStepFee,
		Weight:   int64(weightSteps) * cfg.WeightStepFee,
	}
	minutes := baseDeliveryMinutes + distSteps*minutesPerDistStep
	if peak {
		b.Peak = cfg.PeakSurcharge
		minutes += peakExtraMinutes
	}

	fee := b.Base + b.Distance + b.Weight + b.Peak
	if cfg.FreeDeliveryThreshold > 0 && subtotal >= cfg.FreeDeliveryThreshold {
		b.ThresholdDiscount = min(cfg.ThresholdDiscount, fee)
		fee -= b.ThresholdDiscount
	}

	return DeliveryQuote{
		Fee:              fee,
		DistanceKM:       math.Round(distanceKM*100) / 100,
		WeightKG:         weight,
		EstimatedMinutes: minutes,
		IsPeak:           peak,
		Breakdown:        b,
	}
}

// IsPeak reports whether at falls in a lunch or dinner window.
func IsPeak(at time.Time) bool {
	h := at.Hour()
	for _, w := range peakWindows {
		if h >= w[0] && h < w[1] {
			return true
		}
	}
	return false
}

// steps counts started increments of size step in excess.
func steps(excess, step float64) int {
	if excess <= 0 || step <= 0 {
		return 0
	}
	// tolerate float noise so 7.0 km over a 5 km allowance is one 2 km step
	return int(math.Ceil(excess/step - 1e-9))
}
