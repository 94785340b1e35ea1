// Package validate wraps go-playground/validator with JSON field naming and
// a flat field->message error shape suitable for API error details.
package validate

import (
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

type Validator struct {
	core  *validator.Validate
	trans ut.Translator
}

func New() *Validator {
	lang := en.New()
	uni := ut.New(lang, lang)
	trans, _ := uni.GetTranslator("en")

	v := validator.New()
	_ = en_translations.RegisterDefaultTranslations(v, trans)

	// Report errors against JSON field names, not Go struct names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Validator{core: v, trans: trans}
}

// Struct validates s and returns a field->message map, or nil when valid.
func (v *Validator) Struct(s any) map[string]any {
	err := v.core.Struct(s)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]any{"_": err.Error()}
	}
	out := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = fe.Translate(v.trans)
	}
	return out
}
