package service

import "github.com/noah-isme/student-risk-api/internal/models"

const maxRiskScore = 100

// Level thresholds, inclusive of the lower bound.
const (
	riskMediumFrom   = 26
	riskHighFrom     = 51
	riskCriticalFrom = 76
)

type riskTier struct {
	matches func(models.RiskIndicators) bool
	points  int
	factor  string
}

// riskGroups is evaluated in order; within a group only the first matching tier counts.
var riskGroups = [][]riskTier{
	{ // frequency, max 35
		{func(in models.RiskIndicators) bool { return in.AttendancePercentage < 60 }, 35, "Frequência crítica (< 60%)"},
		{func(in models.RiskIndicators) bool { return in.AttendancePercentage < 70 }, 25, "Frequência muito baixa (< 70%)"},
		{func(in models.RiskIndicators) bool { return in.AttendancePercentage < 75 }, 20, "Frequência abaixo do mínimo (< 75%)"},
		{func(in models.RiskIndicators) bool { return in.AttendancePercentage < 80 }, 10, "Frequência em atenção (< 80%)"},
	},
	{ // grades, max 25
		{func(in models.RiskIndicators) bool { return in.GradeAverage < 4 }, 25, "Média crítica (< 4.0)"},
		{func(in models.RiskIndicators) bool { return in.GradeAverage < 5 }, 18, "Média abaixo da aprovação (< 5.0)"},
		{func(in models.RiskIndicators) bool { return in.GradeAverage < 6 }, 10, "Média baixa (< 6.0)"},
	},
	{ // recent absences, max 20
		{func(in models.RiskIndicators) bool { return in.AbsencesLast30Days >= 10 }, 20, "Muitas faltas recentes (10+)"},
		{func(in models.RiskIndicators) bool { return in.AbsencesLast30Days >= 7 }, 15, "Faltas frequentes recentes (7+)"},
		{func(in models.RiskIndicators) bool { return in.AbsencesLast30Days >= 5 }, 10, "Faltas acumulando (5+)"},
		{func(in models.RiskIndicators) bool { return in.AbsencesLast30Days >= 3 }, 5, "Faltas recentes em atenção (3+)"},
	},
	{ // missed activities, max 10
		{func(in models.RiskIndicators) bool { return in.MissedActivities >= 5 }, 10, "Muitas atividades perdidas (5+)"},
		{func(in models.RiskIndicators) bool { return in.MissedActivities >= 3 }, 6, "Atividades pendentes (3+)"},
	},
	{ // class evasion, max 10
		{func(in models.RiskIndicators) bool { return in.ClassEvasionRate != nil && *in.ClassEvasionRate > 15 }, 10, "Turma com alta evasão (> 15%)"},
		{func(in models.RiskIndicators) bool { return in.ClassEvasionRate != nil && *in.ClassEvasionRate > 10 }, 5, "Turma com evasão elevada (> 10%)"},
	},
}

// CalculateRiskScore maps an indicator snapshot to a clamped score, its level and the
// factors that contributed. Inputs are not validated.
func CalculateRiskScore(in models.RiskIndicators) models.RiskResult {
	score := 0
	factors := make([]string, 0, len(riskGroups))
	for _, group := range riskGroups {
		for _, tier := range group {
			if tier.matches(in) {
				score += tier.points
				factors = append(factors, tier.factor)
				break
			}
		}
	}
	if score > maxRiskScore {
		score = maxRiskScore
	}
	return models.RiskResult{
		Score:   score,
		Level:   RiskLevelForScore(score),
		Factors: factors,
	}
}

// RiskLevelForScore returns the severity band of a score.
func RiskLevelForScore(score int) models.RiskLevel {
	switch {
	case score >= riskCriticalFrom:
		return models.RiskLevelCritical
	case score >= riskHighFrom:
		return models.RiskLevelHigh
	case score >= riskMediumFrom:
		return models.RiskLevelMedium
	default:
		return models.RiskLevelLow
	}
}
