package pipeline

// StatusToken is the raw, untrusted status string reported by the Job API.
type StatusToken string

const (
	tokenCreated  = "created"
	tokenFailed   = "failed"
	tokenRendered = "rendered"
	tokenPartial  = "partial"
)

var ordinalByToken = func() map[string]StageIndex {
	m := make(map[string]StageIndex, len(catalog)+1)
	for _, s := range catalog {
		m[s.ID] = StageIndex(s.Ordinal)
	}
	// The server reports freshly created jobs before segregation starts.
	m[tokenCreated] = StageSegregating
	return m
}()

// Normalize maps a status token onto the catalog. An absent token yields
// NoStage; anything unrecognized, including the empty string and tokens in
// the wrong case, yields StageSegregating. Normalize never fails.
func Normalize(token StatusToken, present bool) StageIndex {
	if !present {
		return NoStage
	}
	if idx, ok := ordinalByToken[string(token)]; ok {
		return idx
	}
	return StageSegregating
}

// NormalizeToken is Normalize for an optional token.
func NormalizeToken(token *string) StageIndex {
	if token == nil {
		return NoStage
	}
	return Normalize(StatusToken(*token), true)
}

// Outcome classifies a status token for callers that need to know whether
// the server is still working on a job.
type Outcome int

const (
	OutcomeRunning Outcome = iota
	OutcomeDone
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDone:
		return "done"
	case OutcomeFailed:
		return "failed"
	default:
		return "running"
	}
}

// Classify reports whether token is terminal. A render run ends in
// "rendered", or "partial" when some pages failed and wait for a page retry.
// Neither is a catalog id, so both still normalize to StageSegregating.
func Classify(token StatusToken) Outcome {
	switch string(token) {
	case tokenFailed:
		return OutcomeFailed
	case catalog[len(catalog)-1].ID, tokenRendered, tokenPartial:
		return OutcomeDone
	default:
		return OutcomeRunning
	}
}
