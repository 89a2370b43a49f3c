package service

import (
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/student-risk-api/internal/models"
)

func registerRiskValidations(v *validator.Validate) {
	_ = v.RegisterValidation("intervention_type", func(fl validator.FieldLevel) bool {
		return models.InterventionType(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("intervention_outcome", func(fl validator.FieldLevel) bool {
		return models.InterventionOutcome(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("risk_status", func(fl validator.FieldLevel) bool {
		return models.RiskRecordStatus(fl.Field().String()).Valid()
	})
}
