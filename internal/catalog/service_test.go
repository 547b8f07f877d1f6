package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/voicecommerce-backend/pkg/db/dbtest"
	pkgerrors "github.com/angelmondragon/voicecommerce-backend/pkg/errors"
)

func newSeededService(t *testing.T) (*Service, *Repository) {
	t.Helper()
	conn := dbtest.Open(t)
	dbtest.SeedCatalog(t, conn)
	repo := NewRepository(conn)
	svc, err := NewService(repo)
	require.NoError(t, err)
	return svc, repo
}

func TestSearchRanksByMatchesThenPopularity(t *testing.T) {
	svc, _ := newSeededService(t)
	ctx := context.Background()

	results, err := svc.Search(ctx, "커피", "", 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "americano", results[0].ID)
	assert.Equal(t, "latte", results[1].ID)

	results, err = svc.Search(ctx, "카페라떼", "", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "latte", results[0].ID)

	results, err = svc.Search(ctx, "", "bakery", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "croissant", results[0].ID)

	results, err = svc.Search(ctx, "피자", "", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestGetProduct(t *testing.T) {
	svc, _ := newSeededService(t)

	p, err := svc.Get(context.Background(), "americano")
	require.NoError(t, err)
	assert.Equal(t, int64(4500), p.Price)
	require.Len(t, p.Options, 1)

	_, err = svc.Get(context.Background(), "missing")
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))

	_, err = svc.Get(context.Background(), " ")
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

func TestRecommendationsSkipOutOfStockAndSelf(t *testing.T) {
	svc, _ := newSeededService(t)

	recs, err := svc.Recommendations(context.Background(), "americano", nil, 5)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "latte", recs[0].ID)

	recs, err = svc.Recommendations(context.Background(), "달달한 거", []string{"americano"}, 5)
	require.NoError(t, err)
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"latte", "croissant"}, ids)
}

func TestPickupLocationsSortedByDistance(t *testing.T) {
	svc, _ := newSeededService(t)

	near := &Point{Lat: dbtest.HongdaeLat, Lng: dbtest.HongdaeLng}
	locs, err := svc.PickupLocations(context.Background(), near)
	require.NoError(t, err)
	require.Len(t, locs, 2)
	assert.Equal(t, "hongdae", locs[0].ID)
	require.NotNil(t, locs[0].DistanceKM)
	assert.InDelta(t, 0, *locs[0].DistanceKM, 0.001)

	loc, km, err := svc.NearestLocation(context.Background(), Point{Lat: dbtest.GangnamLat + 0.01, Lng: dbtest.GangnamLng})
	require.NoError(t, err)
	assert.Equal(t, "gangnam", loc.ID)
	assert.InDelta(t, 1.11, km, 0.05)
}

func TestReserveStock(t *testing.T) {
	svc, repo := newSeededService(t)
	ctx := context.Background()

	require.NoError(t, repo.ReserveStock(ctx, "croissant", 2))
	err := repo.ReserveStock(ctx, "croissant", 2)
	assert.Equal(t, pkgerrors.CodeInsufficientStock, pkgerrors.CodeOf(err))

	p, err := svc.Get(ctx, "croissant")
	require.NoError(t, err)
	assert.Equal(t, 1, p.Stock)
}

func TestProductTermsSkipSharedTags(t *testing.T) {
	svc, _ := newSeededService(t)

	terms, err := svc.ProductTerms(context.Background())
	require.NoError(t, err)
	seen := map[string]string{}
	for _, term := range terms {
		seen[term.Term] = term.ProductID
	}
	assert.Equal(t, "americano", seen["아메리카노"])
	assert.Equal(t, "latte", seen["라떼"])
	assert.Equal(t, "americano", seen["americano"])
	_, shared := seen["커피"]
	assert.False(t, shared, "tags shared by several products must not identify one")
}

func TestLocationNotFound(t *testing.T) {
	svc, _ := newSeededService(t)
	_, err := svc.Location(context.Background(), "busan")
	assert.Equal(t, pkgerrors.CodeLocationNotFound, pkgerrors.CodeOf(err))
}

func TestHaversineKM(t *testing.T) {
	km := HaversineKM(dbtest.GangnamLat, dbtest.GangnamLng, dbtest.HongdaeLat, dbtest.HongdaeLng)
	assert.InDelta(t, 11.23, km, 0.2)
}
