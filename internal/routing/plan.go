package routing

import (
	"sort"

	"gend/pkg/types"
)

// Candidate is one entry of a routing plan.
type Candidate struct {
	EngineID string
	// Reason the candidate entered the plan (requested, default, premium,
	// standard, free, local). Fallback hops override this with the prior
	// failure's reason code when emitting model-selected events.
	Reason string
}

// BuildPlan derives the ordered candidate list for a request from the
// selection policy and catalog metadata. Plans are per-request and never
// persisted. explicit produces a single-candidate plan; the other policies
// walk the static fallback chain premium -> standard -> free -> local, with
// the default engine preferred on ties.
func BuildPlan(handles []types.EngineHandle, req types.GenerateRequest, defaultEngine string) ([]Candidate, error) {
	policy := req.Policy
	if policy == "" {
		if req.Model != "" {
			policy = types.PolicyExplicit
		} else {
			policy = types.PolicyAuto
		}
	}

	switch policy {
	case types.PolicyExplicit:
		if req.Model == "" {
			return nil, errNoModel{}
		}
		return []Candidate{{EngineID: req.Model, Reason: "requested"}}, nil
	case types.PolicyAuto, types.PolicyFreeOnly, types.PolicyCommercialOnly:
	default:
		return nil, errBadPolicy{policy: string(policy)}
	}

	modality := req.Modality
	if modality == "" {
		modality = types.ModalityText
	}

	var picked []types.EngineHandle
	for _, h := range handles {
		if h.Modality != modality {
			continue
		}
		switch policy {
		case types.PolicyFreeOnly:
			if h.Tier != types.TierFree {
				continue
			}
		case types.PolicyCommercialOnly:
			if h.Kind != types.KindRemote || h.Tier == types.TierFree {
				continue
			}
		}
		picked = append(picked, h)
	}

	sort.SliceStable(picked, func(i, j int) bool {
		a, b := picked[i], picked[j]
		if (a.ID == defaultEngine) != (b.ID == defaultEngine) {
			return a.ID == defaultEngine
		}
		if ra, rb := tierRank(a), tierRank(b); ra != rb {
			return ra < rb
		}
		return a.ID < b.ID
	})

	out := make([]Candidate, 0, len(picked))
	for _, h := range picked {
		out = append(out, Candidate{EngineID: h.ID, Reason: planReason(h, defaultEngine)})
	}
	return out, nil
}

// tierRank orders the fallback chain: commercial tiers first, local last.
func tierRank(h types.EngineHandle) int {
	if h.Kind == types.KindLocal {
		return 3
	}
	switch h.Tier {
	case types.TierPremium:
		return 0
	case types.TierStandard:
		return 1
	default:
		return 2
	}
}

func planReason(h types.EngineHandle, defaultEngine string) string {
	if h.ID == defaultEngine {
		return "default"
	}
	if h.Kind == types.KindLocal {
		return "local"
	}
	return string(h.Tier)
}
