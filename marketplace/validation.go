package marketplace

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// nightsMask accepts a 7-bit nights-of-week mask (Sun=bit 0). Zero means no
// nights, which no proposal or listing may carry.
func nightsMask(fl validator.FieldLevel) bool {
	v := fl.Field().Int()
	return v >= 1 && v <= 127
}

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("nightsmask", nightsMask)
	}
}
