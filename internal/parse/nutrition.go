package parse

// foodVocabulary lists food-name tokens that become individual items.
// Action words like "ate" classify a segment as nutrition but are not
// foods themselves, so they live in foodWords, not here.
var foodVocabulary = wordSet(
	"pizza", "salad", "sandwich", "burger", "taco", "soup", "sushi",
	"egg", "eggs", "chicken", "beef", "fish", "salmon", "tofu",
	"rice", "pasta", "bread", "toast", "oatmeal", "cereal",
	"apple", "banana", "orange", "berries", "avocado",
	"yogurt", "cheese", "smoothie", "shake", "nuts",
)

const (
	nutritionMealConfidence    = 90
	nutritionItemsConfidence   = 85
	nutritionGenericConfidence = 65
	defaultMealType            = "snack"
)

// extractNutrition finds a meal type and every recognized food item.
// Quantities default to one serving; the source utterances rarely carry
// counts and a confirmation covers the rest.
func extractNutrition(text string) (Fields, int) {
	mealType, hasMeal := firstMatch(text, mealWords)
	if !hasMeal {
		mealType = defaultMealType
	}

	var items []FoodItem
	seen := make(map[string]struct{})
	for _, token := range tokenize(text) {
		if _, ok := foodVocabulary[token]; !ok {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		items = append(items, FoodItem{Name: token, Quantity: 1, Unit: "serving"})
	}

	if len(items) == 0 {
		// Classification fired on a meal word or food verb but no food
		// token matched; keep the whole segment as one generic item.
		return NutritionFields{
			Items:    []FoodItem{{Name: text, Quantity: 1, Unit: "serving"}},
			MealType: mealType,
		}, nutritionGenericConfidence
	}

	confidence := nutritionItemsConfidence
	if hasMeal {
		confidence = nutritionMealConfidence
	}
	return NutritionFields{Items: items, MealType: mealType}, confidence
}
