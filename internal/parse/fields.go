package parse

// Fields is the type-specific payload of an Activity. Exactly one concrete
// variant exists per activity type, so calling code can switch exhaustively
// instead of digging through an untyped map.
type Fields interface {
	fields()
}

// WeightUnit is the canonical unit of a body-weight reading.
type WeightUnit string

const (
	UnitKg  WeightUnit = "kg"
	UnitLbs WeightUnit = "lbs"
)

// WeightFields carries a body-weight reading.
type WeightFields struct {
	Value float64    `json:"value"`
	Unit  WeightUnit `json:"unit"`
}

// FoodItem is one recognized food within a nutrition segment.
type FoodItem struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
}

// NutritionFields carries a meal or snack.
type NutritionFields struct {
	Items    []FoodItem `json:"items"`
	MealType string     `json:"meal_type,omitempty"`
}

// CardioFields carries a distance/duration workout.
type CardioFields struct {
	ActivityName    string  `json:"activity_name"`
	Distance        float64 `json:"distance,omitempty"`
	DistanceUnit    string  `json:"distance_unit,omitempty"`
	DurationMinutes float64 `json:"duration_minutes,omitempty"`
}

// SetRecord is one performed set of a strength exercise. Weight is stored
// canonically in kilograms regardless of the unit spoken.
type SetRecord struct {
	Reps     int     `json:"reps,omitempty"`
	WeightKg float64 `json:"weight_kg,omitempty"`
	RPE      float64 `json:"rpe,omitempty"`
}

// StrengthFields carries a lifting session.
type StrengthFields struct {
	ActivityName string      `json:"activity_name"`
	Sets         []SetRecord `json:"sets,omitempty"`
}

// SleepFields carries hours slept.
type SleepFields struct {
	Hours float64 `json:"hours"`
}

// WaterFields carries a hydration amount.
type WaterFields struct {
	Amount float64 `json:"amount"`
	Unit   string  `json:"unit"`
}

// MoodFields carries a mood label from the fixed vocabulary.
type MoodFields struct {
	Mood string `json:"mood"`
}

// EnergyFields carries a self-reported energy level.
type EnergyFields struct {
	Level int `json:"level"`
}

// UnknownFields preserves a segment that could not be classified.
type UnknownFields struct {
	Raw string `json:"raw"`
}

func (WeightFields) fields()    {}
func (NutritionFields) fields() {}
func (CardioFields) fields()    {}
func (StrengthFields) fields()  {}
func (SleepFields) fields()     {}
func (WaterFields) fields()     {}
func (MoodFields) fields()      {}
func (EnergyFields) fields()    {}
func (UnknownFields) fields()   {}
