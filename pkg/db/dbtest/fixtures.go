package dbtest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/angelmondragon/voicecommerce-backend/pkg/db/models"
	"github.com/angelmondragon/voicecommerce-backend/pkg/enums"
)

// Fixed coordinates for the seeded stores.
const (
	GangnamLat = 37.4979
	GangnamLng = 127.0276
	HongdaeLat = 37.5572
	HongdaeLng = 126.9245
)

// AllDayHours opens every weekday from 00:00 to 24:00.
func AllDayHours() models.WeeklyHours {
	hours := models.WeeklyHours{}
	for _, day := range []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"} {
		hours[day] = models.DayHours{Open: "00:00", Close: "24:00"}
	}
	return hours
}

// SeedCatalog inserts the demo products and two store locations.
func SeedCatalog(t testing.TB, conn *gorm.DB) {
	t.Helper()
	sizes := models.OptionGroup{
		Name:    "size",
		Default: "regular",
		Choices: []models.OptionChoice{{Value: "regular"}, {Value: "large", PriceModifier: 500}},
	}
	products := []models.Product{
		{ID: "americano", Name: "아메리카노", Category: "coffee", Price: 4500, Stock: 200, Popularity: 95, IsActive: true,
			Options: []models.OptionGroup{sizes}, Tags: pq.StringArray{"커피", "americano"}},
		{ID: "latte", Name: "카페라떼", Category: "coffee", Price: 5000, Stock: 150, Popularity: 80, IsActive: true,
			Options: []models.OptionGroup{sizes}, Tags: pq.StringArray{"커피", "라떼"}},
		{ID: "croissant", Name: "크루아상", Category: "bakery", Price: 3800, Stock: 3, Popularity: 60, IsActive: true,
			Tags: pq.StringArray{"빵"}},
		{ID: "cheesecake", Name: "치즈케이크", Category: "dessert", Price: 6500, Stock: 0, Popularity: 55, IsActive: true},
	}
	for i := range products {
		if err := conn.Create(&products[i]).Error; err != nil {
			t.Fatalf("seed product %s: %v", products[i].ID, err)
		}
	}

	sundayClosed := AllDayHours()
	sundayClosed["sunday"] = models.DayHours{Closed: true}
	locations := []models.StoreLocation{
		{ID: "gangnam", Name: "강남역점", Address: "서울 강남구 강남대로 396", Lat: GangnamLat, Lng: GangnamLng, Hours: AllDayHours(), IsActive: true},
		{ID: "hongdae", Name: "홍대입구점", Address: "서울 마포구 양화로 160", Lat: HongdaeLat, Lng: HongdaeLng, Hours: sundayClosed, IsActive: true},
	}
	for i := range locations {
		if err := conn.Create(&locations[i]).Error; err != nil {
			t.Fatalf("seed location %s: %v", locations[i].ID, err)
		}
	}
}

// CouponOption mutates a coupon before it is inserted.
type CouponOption func(*models.Coupon)

// SeedCoupon inserts an active coupon valid for a day around now.
func SeedCoupon(t testing.TB, conn *gorm.DB, code string, kind enums.DiscountType, value int64, now time.Time, opts ...CouponOption) *models.Coupon {
	t.Helper()
	coupon := &models.Coupon{
		ID:         uuid.New(),
		Code:       models.NormalizeCouponCode(code),
		Name:       code,
		Type:       kind,
		Value:      value,
		ValidFrom:  now.Add(-24 * time.Hour),
		ValidUntil: now.Add(24 * time.Hour),
		IsActive:   true,
	}
	for _, opt := range opts {
		opt(coupon)
	}
	active := coupon.IsActive
	if err := conn.Create(coupon).Error; err != nil {
		t.Fatalf("seed coupon %s: %v", code, err)
	}
	// gorm skips zero values for columns with a default.
	if !active {
		if err := conn.Model(coupon).Update("is_active", false).Error; err != nil {
			t.Fatalf("deactivate coupon %s: %v", code, err)
		}
		coupon.IsActive = false
	}
	return coupon
}

func WithMinOrder(amount int64) CouponOption {
	return func(c *models.Coupon) { c.MinOrderAmount = amount }
}

func WithMaxDiscount(amount int64) CouponOption {
	return func(c *models.Coupon) { c.MaxDiscountAmount = &amount }
}

func WithValidity(from, until time.Time) CouponOption {
	return func(c *models.Coupon) { c.ValidFrom, c.ValidUntil = from, until }
}

func WithCategories(categories ...string) CouponOption {
	return func(c *models.Coupon) { c.ApplicableCategories = categories }
}

func WithUsers(users ...string) CouponOption {
	return func(c *models.Coupon) { c.ApplicableUsers = users }
}

func WithUsageLimit(limit, used int) CouponOption {
	return func(c *models.Coupon) { c.UsageLimit, c.UsageCount = &limit, used }
}

func Inactive() CouponOption {
	return func(c *models.Coupon) { c.IsActive = false }
}
