package models

import (
	"time"

	"github.com/lib/pq"
)

// Product is a sellable catalog entry. IDs are stable menu codes.
type Product struct {
	ID          string         `gorm:"column:id;primaryKey"`
	Name        string         `gorm:"column:name;not null"`
	Category    string         `gorm:"column:category;not null;index"`
	Description string         `gorm:"column:description"`
	Price       int64          `gorm:"column:price;not null"`
	Stock       int            `gorm:"column:stock;not null;default:0"`
	Options     []OptionGroup  `gorm:"column:options;type:jsonb;serializer:json"`
	Tags        pq.StringArray `gorm:"column:tags;type:text[]"`
	Popularity  int            `gorm:"column:popularity;not null;default:0"`
	IsActive    bool           `gorm:"column:is_active;not null;default:true"`
	CreatedAt   time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (Product) TableName() string { return "products" }

// OptionGroup is a named choice (size, temperature) with priced values.
type OptionGroup struct {
	Name    string         `json:"name"`
	Choices []OptionChoice `json:"choices"`
	Default string         `json:"default,omitempty"`
}

type OptionChoice struct {
	Value         string `json:"value"`
	PriceModifier int64  `json:"price_modifier"`
}

// OptionModifier sums the price modifiers of the selected choices. Unknown
// groups or values are reported through ok=false.
func (p Product) OptionModifier(selected map[string]string) (int64, bool) {
	var total int64
	for name, value := range selected {
		group, found := p.optionGroup(name)
		if !found {
			return 0, false
		}
		matched := false
		for _, choice := range group.Choices {
			if choice.Value == value {
				total += choice.PriceModifier
				matched = true
				break
			}
		}
		if !matched {
			return 0, false
		}
	}
	return total, true
}

func (p Product) optionGroup(name string) (OptionGroup, bool) {
	for _, g := range p.Options {
		if g.Name == name {
			return g, true
		}
	}
	return OptionGroup{}, false
}
