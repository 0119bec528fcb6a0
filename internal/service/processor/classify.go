package processor

import (
	"sort"
	"strings"

	"mail-to-quote-go/internal/collaborator"
	"mail-to-quote-go/internal/model"
)

const (
	// foundScore is the score from which a single candidate is accepted outright.
	foundScore = 95.0
	// clearLead is the minimum gap between the two best clients for the best one
	// to win below foundScore.
	clearLead = 10.0
)

// Keyword sets matched against the matcher's free-text reason. They follow
// the matcher's French wording and must stay in sync with it.
var (
	exactKeywords      = []string{"exact", "exacte", "identique", "code fournisseur trouvé"}
	historicalKeywords = []string{"historique", "historical", "mapping", "appris", "déjà commandé", "precedent", "précédent"}
)

// deriveClient picks the client status and code from ranked candidates.
func deriveClient(candidates []collaborator.ClientCandidate) (model.MatchStatus, *string) {
	if len(candidates) == 0 {
		return model.MatchNotFound, nil
	}

	ranked := make([]collaborator.ClientCandidate, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })

	best := ranked[0]
	code := best.Code
	if best.Score >= foundScore {
		return model.MatchFound, &code
	}
	if len(ranked) == 1 || best.Score-ranked[1].Score >= clearLead {
		return model.MatchFound, &code
	}
	return model.MatchAmbiguous, nil
}

// deriveProductStatus classifies one product candidate.
func deriveProductStatus(p collaborator.ProductCandidate) model.MatchStatus {
	switch {
	case p.NotFoundInSAP:
		return model.MatchNotFound
	case p.Score >= foundScore:
		return model.MatchFound
	default:
		return model.MatchAmbiguous
	}
}

// classifySearchType maps a match reason onto a search type.
func classifySearchType(reason string) model.SearchType {
	r := strings.ToLower(reason)
	if containsAny(r, exactKeywords) {
		return model.SearchExact
	}
	if containsAny(r, historicalKeywords) {
		return model.SearchHistorical
	}
	return model.SearchFuzzy
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
