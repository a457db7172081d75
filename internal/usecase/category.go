package usecase

import (
	"strings"

	"github.com/smartsave/gateway/internal/domain"
)

// categorySynonyms maps provider category names onto canonical categories (exact match)
var categorySynonyms = map[string]string{
	"Frutas y verduras": domain.CategoryFruits,
	"Fruta":             domain.CategoryFruits,
	"Verdura":           domain.CategoryVegetables,
	"Carnicería":        domain.CategoryMeat,
	"Pescadería":        domain.CategoryFish,
	"Charcutería":       domain.CategoryMeat,
	"Quesos":            domain.CategoryDairy,
	"Lácteos":           domain.CategoryDairy,
	"Huevos":            domain.CategoryDairy,
	"Panadería":         domain.CategoryBakery,
	"Pastelería":        domain.CategoryBakery,
	"Cereales":          domain.CategoryCereals,
	"Legumbres":         domain.CategoryLegumes,
	"Pasta":             domain.CategoryCereals,
	"Aceites":           domain.CategoryOils,
}

type keywordRule struct {
	keyword  string
	category string
}

// categoryKeywords is evaluated in order; the first substring hit wins.
var categoryKeywords = []keywordRule{
	{"fruta", domain.CategoryFruits},
	{"verdura", domain.CategoryVegetables},
	{"carne", domain.CategoryMeat},
	{"pescado", domain.CategoryFish},
	{"lácteo", domain.CategoryDairy},
	{"lacteo", domain.CategoryDairy},
	{"leche", domain.CategoryDairy},
	{"pan", domain.CategoryBakery},
	{"cereal", domain.CategoryCereals},
	{"legumbre", domain.CategoryLegumes},
	{"aceite", domain.CategoryOils},
}

// Typical values per 100 g, used when the provider sends no nutrition facts.
var categoryNutrition = map[string]domain.Nutrition{
	domain.CategoryFruits:     {Calories: 50, Protein: 0.5, Carbohydrates: 12, Fat: 0.2, Fiber: 2, Sugar: 10},
	domain.CategoryVegetables: {Calories: 25, Protein: 1.5, Carbohydrates: 5, Fat: 0.2, Fiber: 3, Sugar: 2},
	domain.CategoryMeat:       {Calories: 200, Protein: 25, Carbohydrates: 0, Fat: 12, Sodium: 60},
	domain.CategoryFish:       {Calories: 150, Protein: 22, Carbohydrates: 0, Fat: 6, Sodium: 50},
	domain.CategoryDairy:      {Calories: 120, Protein: 5, Carbohydrates: 9, Fat: 7, Sodium: 40, Sugar: 5},
	domain.CategoryBakery:     {Calories: 250, Protein: 8, Carbohydrates: 48, Fat: 2, Fiber: 2, Sodium: 500},
	domain.CategoryCereals:    {Calories: 350, Protein: 10, Carbohydrates: 70, Fat: 2, Fiber: 7, Sodium: 5},
	domain.CategoryLegumes:    {Calories: 300, Protein: 20, Carbohydrates: 50, Fat: 1.5, Fiber: 15, Sodium: 15},
	domain.CategoryOils:       {Calories: 900, Protein: 0, Carbohydrates: 0, Fat: 100},
}

var genericNutrition = domain.Nutrition{Calories: 100, Protein: 2, Carbohydrates: 10, Fat: 1}

// CanonicalCategory maps a free-text provider category onto a canonical one.
// Unknown or empty categories map to domain.CategoryOther.
func CanonicalCategory(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.CategoryOther
	}
	if category, ok := categorySynonyms[raw]; ok {
		return category
	}

	lower := strings.ToLower(raw)
	for _, rule := range categoryKeywords {
		if strings.Contains(lower, rule.keyword) {
			return rule.category
		}
	}
	return domain.CategoryOther
}

// DefaultNutrition returns the nutrition profile for a canonical category
func DefaultNutrition(category string) domain.Nutrition {
	if n, ok := categoryNutrition[category]; ok {
		return n
	}
	return genericNutrition
}

// mapNutrition converts provider nutrition facts to the domain model
func mapNutrition(raw *domain.RawNutrition) domain.Nutrition {
	return domain.Nutrition{
		Calories:      raw.Energy,
		Protein:       raw.Proteins,
		Carbohydrates: raw.Carbohydrates,
		Fat:           raw.Fats,
		Fiber:         raw.Fiber,
		Sodium:        raw.Sodium,
		Sugar:         raw.Sugars,
	}
}
