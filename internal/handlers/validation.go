package handlers

import (
	"github.com/SscSPs/fin_model_app/internal/core/domain"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

func init() {
	// Section values keep their exact decimal text instead of becoming float64.
	binding.EnableDecoderUseNumber = true

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("calculation_type", validCalculationType)
		_ = v.RegisterValidation("audit_action", validAuditAction)
	}
}

func validCalculationType(fl validator.FieldLevel) bool {
	return domain.CalculationType(fl.Field().String()).IsValid()
}

func validAuditAction(fl validator.FieldLevel) bool {
	return domain.AuditAction(fl.Field().String()).IsValid()
}
