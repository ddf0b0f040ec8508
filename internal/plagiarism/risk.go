package plagiarism

import "github.com/eduportal/integrity/internal/models"

// RiskLevel maps a 0..100 submission score onto a risk label
func RiskLevel(score int) string {
	if score < 30 {
		return models.RiskClean
	} else if score < 60 {
		return models.RiskSuspicious
	} else if score < 85 {
		return models.RiskHighlySuspicious
	}
	return models.RiskNearCopy
}
