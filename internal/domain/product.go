package domain

import "strings"

// Canonical categories that external free-text categories are mapped onto.
const (
	CategoryFruits     = "Frutas"
	CategoryVegetables = "Verduras"
	CategoryMeat       = "Carnes"
	CategoryFish       = "Pescados"
	CategoryDairy      = "Lácteos"
	CategoryBakery     = "Panadería"
	CategoryCereals    = "Cereales"
	CategoryLegumes    = "Legumbres"
	CategoryOils       = "Aceites"
	CategoryOther      = "Otros"
)

// Dietary restrictions understood by Product.MeetsRestrictions.
const (
	RestrictionGlutenFree  = "Sin gluten"
	RestrictionLactoseFree = "Sin lactosa"
	RestrictionVegan       = "Vegano"
)

// Product is the canonical product entity handed to the presentation layer
type Product struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Brand     string    `json:"brand"`
	Category  string    `json:"category"`
	Price     float64   `json:"price"`
	Source    string    `json:"source"` // origin provider, e.g. "Mercadona"
	Available bool      `json:"available"`
	Nutrition Nutrition `json:"nutrition"`
}

// ProteinPerPrice returns grams of protein per currency unit, or 0 for free or unpriced products.
func (p Product) ProteinPerPrice() float64 {
	if p.Price <= 0 {
		return 0
	}
	return p.Nutrition.Protein / p.Price
}

// CaloriesPerPrice returns calories per currency unit, or 0 for free or unpriced products.
func (p Product) CaloriesPerPrice() float64 {
	if p.Price <= 0 {
		return 0
	}
	return p.Nutrition.Calories / p.Price
}

// MeetsRestrictions reports whether the product is compatible with every given dietary restriction.
// The check is category based; unknown restrictions are ignored.
func (p Product) MeetsRestrictions(restrictions []string) bool {
	category := strings.ToLower(p.Category)
	isDairy := strings.Contains(category, "lácteo") || strings.Contains(category, "lacteo")

	for _, r := range restrictions {
		switch r {
		case RestrictionGlutenFree:
			if strings.Contains(category, "pan") {
				return false
			}
		case RestrictionLactoseFree:
			if isDairy {
				return false
			}
		case RestrictionVegan:
			if isDairy || strings.Contains(category, "carne") || strings.Contains(category, "pescado") {
				return false
			}
		}
	}
	return true
}
