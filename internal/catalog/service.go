package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/angelmondragon/voicecommerce-backend/internal/intent"
	"github.com/angelmondragon/voicecommerce-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/voicecommerce-backend/pkg/errors"
)

const (
	defaultMaxResults = 5
	maxMaxResults     = 20
)

type productStore interface {
	ListActiveProducts(ctx context.Context, category string) ([]models.Product, error)
	FindProduct(ctx context.Context, id string) (*models.Product, error)
	ListStoreLocations(ctx context.Context) ([]models.StoreLocation, error)
	FindStoreLocation(ctx context.Context, id string) (*models.StoreLocation, error)
}

// Service answers catalog and store-location lookups.
type Service struct {
	repo productStore
}

func NewService(repo productStore) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	return &Service{repo: repo}, nil
}

// Point is a coordinate used to rank pickup locations.
type Point struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `json:"lng" validate:"gte=-180,lte=180"`
}

// Search ranks active products by how many query words they match, then by
// popularity. An empty query lists the most popular products.
func (s *Service) Search(ctx context.Context, query, category string, maxResults int) ([]ProductDTO, error) {
	products, err := s.repo.ListActiveProducts(ctx, category)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	terms := strings.Fields(normalize(query))
	full := normalize(query)

	type scored struct {
		product models.Product
		score   int
	}
	var hits []scored
	for _, p := range products {
		haystack := normalize(strings.Join([]string{p.Name, p.Category, p.Description, strings.Join(p.Tags, " ")}, " "))
		score := 0
		for _, term := range terms {
			if strings.Contains(haystack, term) {
				score++
			}
		}
		if full != "" && strings.Contains(normalize(p.Name), full) {
			score += 2
		}
		if len(terms) > 0 && score == 0 {
			continue
		}
		hits = append(hits, scored{product: p, score: score})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].product.Popularity > hits[j].product.Popularity
	})

	limit := clampMax(maxResults)
	out := make([]ProductDTO, 0, limit)
	for _, h := range hits {
		if len(out) == limit {
			break
		}
		out = append(out, ToDTO(h.product))
	}
	return out, nil
}

// Get loads a product for the cart engine.
func (s *Service) Get(ctx context.Context, productID string) (*models.Product, error) {
	if strings.TrimSpace(productID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	return s.repo.FindProduct(ctx, productID)
}

// Recommendations suggests in-stock products. The context may be a product id
// or free text; a product id narrows suggestions to its category.
func (s *Service) Recommendations(ctx context.Context, contextHint string, exclude []string, maxResults int) ([]ProductDTO, error) {
	category := ""
	excluded := map[string]bool{}
	for _, id := range exclude {
		excluded[id] = true
	}
	if hint := strings.TrimSpace(contextHint); hint != "" {
		if p, err := s.repo.FindProduct(ctx, hint); err == nil {
			category = p.Category
			excluded[p.ID] = true
		} else if pkgerrors.CodeOf(err) != pkgerrors.CodeNotFound {
			return nil, err
		}
	}

	products, err := s.repo.ListActiveProducts(ctx, category)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	if len(products) == 0 && category != "" {
		if products, err = s.repo.ListActiveProducts(ctx, ""); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
		}
	}

	limit := clampMax(maxResults)
	out := make([]ProductDTO, 0, limit)
	for _, p := range products {
		if len(out) == limit {
			break
		}
		if excluded[p.ID] || p.Stock <= 0 {
			continue
		}
		out = append(out, ToDTO(p))
	}
	return out, nil
}

// PickupLocations lists active stores, nearest first when near is given.
func (s *Service) PickupLocations(ctx context.Context, near *Point) ([]LocationDTO, error) {
	locations, err := s.repo.ListStoreLocations(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list store locations")
	}
	out := make([]LocationDTO, 0, len(locations))
	for _, loc := range locations {
		dto := ToLocationDTO(loc)
		if near != nil {
			km := HaversineKM(near.Lat, near.Lng, loc.Lat, loc.Lng)
			dto.DistanceKM = &km
		}
		out = append(out, dto)
	}
	if near != nil {
		sort.SliceStable(out, func(i, j int) bool { return *out[i].DistanceKM < *out[j].DistanceKM })
	}
	return out, nil
}

func (s *Service) Location(ctx context.Context, id string) (*models.StoreLocation, error) {
	return s.repo.FindStoreLocation(ctx, id)
}

// NearestLocation returns the closest active store and its distance in km.
func (s *Service) NearestLocation(ctx context.Context, at Point) (*models.StoreLocation, float64, error) {
	locations, err := s.repo.ListStoreLocations(ctx)
	if err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list store locations")
	}
	if len(locations) == 0 {
		return nil, 0, pkgerrors.New(pkgerrors.CodeLocationNotFound, "no active store locations")
	}
	best := 0
	bestKM := HaversineKM(at.Lat, at.Lng, locations[0].Lat, locations[0].Lng)
	for i := 1; i < len(locations); i++ {
		km := HaversineKM(at.Lat, at.Lng, locations[i].Lat, locations[i].Lng)
		if km < bestKM {
			best, bestKM = i, km
		}
	}
	return &locations[best], bestKM, nil
}

// ProductTerms feeds the intent classifier with product names and the tags
// that identify exactly one product.
func (s *Service) ProductTerms(ctx context.Context) ([]intent.ProductTerm, error) {
	products, err := s.repo.ListActiveProducts(ctx, "")
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	owners := map[string]int{}
	for _, p := range products {
		for _, tag := range p.Tags {
			owners[normalize(tag)]++
		}
	}
	var terms []intent.ProductTerm
	for _, p := range products {
		terms = append(terms, intent.ProductTerm{Term: p.Name, ProductID: p.ID, Name: p.Name})
		for _, tag := range p.Tags {
			if owners[normalize(tag)] == 1 && normalize(tag) != normalize(p.Name) {
				terms = append(terms, intent.ProductTerm{Term: tag, ProductID: p.ID, Name: p.Name})
			}
		}
	}
	return terms, nil
}

func normalize(s string) string {
	return strings.TrimSpace(strings.ToLower(norm.NFC.String(s)))
}

func clampMax(n int) int {
	switch {
	case n <= 0:
		return defaultMaxResults
	case n > maxMaxResults:
		return maxMaxResults
	}
	return n
}
