package triage

import (
	"strings"

	"github.com/triagedesk/triage-service/internal/domain"
)

const (
	baseRiskScore        = 25
	errorRiskBonus       = 20
	highRiskBonus        = 15
	criticalRiskBonus    = 30
	securityRiskBonus    = 25
	billingRiskBonus     = 10
	systemicRiskBonus    = 15
	maxRiskScore         = 100
	minRiskScore         = 0
	rationaleSeparator   = "; "
	defaultRationaleText = "classificação padrão"
)

// Input is the free text a classification is computed from.
type Input struct {
	Title        string
	Description  string
	ErrorMessage string
}

// Classification is the result of scoring a ticket's text.
type Classification struct {
	Category  domain.TicketCategory
	Priority  domain.TicketPriority
	RiskScore int
	Rationale string
	Tags      []string
}

// Classify scores the input against the built-in lexicons. It never fails.
func Classify(in Input) Classification {
	return classify(in, defaultLexicons, highPriorityKeywords, criticalPriorityKeywords)
}

func classify(in Input, lexicons []categoryLexicon, high, critical []string) Classification {
	text := strings.ToLower(in.Title + " " + in.Description + " " + in.ErrorMessage)

	result := Classification{
		Category:  domain.CategoryOther,
		Priority:  domain.TicketPriorityMedium,
		RiskScore: baseRiskScore,
		Tags:      []string{},
	}
	var rationale []string

	seen := make(map[string]struct{})
	bestHits := 0
	for _, lex := range lexicons {
		hits := 0
		for _, kw := range lex.Keywords {
			if !strings.Contains(text, kw) {
				continue
			}
			hits++
			if _, dup := seen[kw]; !dup && len(result.Tags) < domain.MaxTags {
				seen[kw] = struct{}{}
				result.Tags = append(result.Tags, kw)
			}
		}
		if hits > bestHits {
			bestHits = hits
			result.Category = lex.Category
		}
	}

	if strings.TrimSpace(in.ErrorMessage) != "" {
		result.Category = domain.CategorySystemic
		result.RiskScore += errorRiskBonus
		rationale = append(rationale, "mensagem de erro técnica presente")
	}

	if kw, ok := firstMatch(text, high); ok {
		result.Priority = domain.TicketPriorityHigh
		result.RiskScore += highRiskBonus
		rationale = append(rationale, "palavra-chave de alta prioridade: "+kw)
	}
	if kw, ok := firstMatch(text, critical); ok {
		result.Priority = domain.TicketPriorityCritical
		result.RiskScore += criticalRiskBonus
		rationale = append(rationale, "palavra-chave crítica: "+kw)
	}

	switch result.Category {
	case domain.CategorySecurity:
		result.RiskScore += securityRiskBonus
		if result.Priority == domain.TicketPriorityMedium {
			result.Priority = domain.TicketPriorityHigh
		}
		rationale = append(rationale, "categoria de segurança")
	case domain.CategoryBilling:
		result.RiskScore += billingRiskBonus
		rationale = append(rationale, "impacto financeiro")
	case domain.CategorySystemic:
		result.RiskScore += systemicRiskBonus
		rationale = append(rationale, "falha sistêmica")
	}

	if result.RiskScore > maxRiskScore {
		result.RiskScore = maxRiskScore
	}
	if result.RiskScore < minRiskScore {
		result.RiskScore = minRiskScore
	}

	if len(rationale) == 0 {
		result.Rationale = defaultRationaleText
	} else {
		result.Rationale = strings.Join(rationale, rationaleSeparator)
	}
	return result
}

func firstMatch(text string, keywords []string) (string, bool) {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return kw, true
		}
	}
	return "", false
}
