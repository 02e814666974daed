package schedule

import (
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/engage-scheduler/internal/model"
)

// Custom binding validators for schedule payloads. Registered once on
// gin's shared validator engine so error messages carry json field
// names instead of Go struct fields.
func init() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return fld.Name
		}
		return name
	})

	if err := v.RegisterValidation("platform", validPlatform); err != nil {
		panic(err)
	}
}

func validPlatform(fl validator.FieldLevel) bool {
	return model.Platform(fl.Field().String()).Valid()
}
