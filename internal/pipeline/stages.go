// Package pipeline describes the fixed server-side processing pipeline a
// submitted document moves through and maps the Job API's status tokens onto it.
package pipeline

// Stage is one named step of the processing pipeline.
type Stage struct {
	ID      string `json:"id"`
	Ordinal int    `json:"ordinal"`
	Label   string `json:"label"`
}

// StageIndex is an ordinal into the catalog. NoStage means no job exists yet.
type StageIndex int

// NoStage is reported before any job has been created.
const NoStage StageIndex = -1

const (
	StageSegregating StageIndex = iota
	StageExtracting
	StagePlanning
	StageRendered
)

var catalog = [...]Stage{
	{ID: "processing", Ordinal: 0, Label: "Segregating"},
	{ID: "extracted", Ordinal: 1, Label: "Extracting"},
	{ID: "planned", Ordinal: 2, Label: "Planning"},
	{ID: "completed", Ordinal: 3, Label: "Rendered"},
}

// Stages returns the catalog in pipeline order. The slice is a copy.
func Stages() []Stage {
	out := make([]Stage, len(catalog))
	copy(out, catalog[:])
	return out
}

// StageCount returns the number of stages in the catalog.
func StageCount() int {
	return len(catalog)
}

// LastIndex returns the index of the terminal stage.
func LastIndex() StageIndex {
	return StageIndex(len(catalog) - 1)
}

// StageAt returns the stage at index i.
func StageAt(i StageIndex) (Stage, bool) {
	if !i.Valid() {
		return Stage{}, false
	}
	return catalog[i], true
}

// Valid reports whether i addresses a catalog entry.
func (i StageIndex) Valid() bool {
	return i >= 0 && int(i) < len(catalog)
}

// Label returns the display label for i, or "" for NoStage.
func (i StageIndex) Label() string {
	s, ok := StageAt(i)
	if !ok {
		return ""
	}
	return s.Label
}
