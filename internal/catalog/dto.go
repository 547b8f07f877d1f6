package catalog

import "github.com/angelmondragon/voicecommerce-backend/pkg/db/models"

// ProductDTO is the product shape returned to the model and the UI.
type ProductDTO struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Category    string               `json:"category"`
	Description string               `json:"description,omitempty"`
	Price       int64                `json:"price"`
	InStock     bool                 `json:"inStock"`
	Options     []models.OptionGroup `json:"options,omitempty"`
	Tags        []string             `json:"tags,omitempty"`
}

type LocationDTO struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Address    string             `json:"address"`
	Phone      string             `json:"phone,omitempty"`
	Lat        float64            `json:"lat"`
	Lng        float64            `json:"lng"`
	Hours      models.WeeklyHours `json:"hours"`
	DistanceKM *float64           `json:"distanceKm,omitempty"`
}

func ToDTO(p models.Product) ProductDTO {
	return ProductDTO{
		ID:          p.ID,
		Name:        p.Name,
		Category:    p.Category,
		Description: p.Description,
		Price:       p.Price,
		InStock:     p.Stock > 0,
		Options:     p.Options,
		Tags:        []string(p.Tags),
	}
}

func ToLocationDTO(l models.StoreLocation) LocationDTO {
	return LocationDTO{
		ID:      l.ID,
		Name:    l.Name,
		Address: l.Address,
		Phone:   l.Phone,
		Lat:     l.Lat,
		Lng:     l.Lng,
		Hours:   l.Hours,
	}
}
