package models

// Criterion is one of the six fixed risk criteria every event is scored against.
type Criterion struct {
	ID   int
	Slug string
}

// The fixed criterion catalogue. IDs are stable and match the seeded
// criteria table; never reorder.
var Criteria = []Criterion{
	{ID: 1, Slug: "it_security"},
	{ID: 2, Slug: "performance_degradation"},
	{ID: 3, Slug: "failure_prediction"},
	{ID: 4, Slug: "anomaly"},
	{ID: 5, Slug: "compliance_audit"},
	{ID: 6, Slug: "operational_risk"},
}

// CriterionCount is the number of criteria every event must be scored against
// before a window containing it counts as fully scored.
const CriterionCount = 6

// CriterionBySlug returns the criterion for a slug, or false when unknown.
func CriterionBySlug(slug string) (Criterion, bool) {
	for _, c := range Criteria {
		if c.Slug == slug {
			return c, true
		}
	}
	return Criterion{}, false
}

// CriterionByID returns the criterion for a numeric id, or false when unknown.
func CriterionByID(id int) (Criterion, bool) {
	for _, c := range Criteria {
		if c.ID == id {
			return c, true
		}
	}
	return Criterion{}, false
}
