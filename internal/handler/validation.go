package handler

import (
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"mail-to-quote-go/internal/model"
)

var registerOnce sync.Once

// registerValidations adds the domain tags used in request bindings.
func registerValidations() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			logrus.Warn("Gin validator engine is not go-playground/validator, custom tags unavailable")
			return
		}
		if err := v.RegisterValidation("quote_status", func(fl validator.FieldLevel) bool {
			return model.QuoteStatus(fl.Field().String()).Valid()
		}); err != nil {
			logrus.Errorf("Failed to register quote_status validation: %v", err)
		}
	})
}
