package validator

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	govalidator "github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/stemsi/exstem-mocktest/internal/richtext"
)

var (
	// trans is the singleton English translator for validation errors.
	trans     ut.Translator
	transOnce sync.Once

	// payload validates decoded test payloads (`validate` tags).
	payload     *govalidator.Validate
	payloadOnce sync.Once
)

func translator() ut.Translator {
	transOnce.Do(func() {
		enLocale := en.New()
		uni := ut.New(enLocale, enLocale)
		trans, _ = uni.GetTranslator("en")
	})
	return trans
}

// configure applies the shared tag-name func, custom rules and translations.
func configure(v *govalidator.Validate) {
	// Use JSON tag name for field names in error messages.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("language", func(fl govalidator.FieldLevel) bool {
		_, ok := richtext.ParseLanguage(fl.Field().String())
		return ok
	})

	t := translator()
	_ = en_translations.RegisterDefaultTranslations(v, t)
	_ = v.RegisterTranslation("language", t,
		func(ut ut.Translator) error {
			return ut.Add("language", "{0} must be one of en, hi", true)
		},
		func(ut ut.Translator, fe govalidator.FieldError) string {
			msg, _ := ut.T("language", fe.Field())
			return msg
		},
	)
}

// Setup registers the validator with English translations on Gin's binding engine.
// Call once during application startup.
func Setup() {
	if v, ok := binding.Validator.Engine().(*govalidator.Validate); ok {
		configure(v)
	}
}

// Struct validates a decoded payload against its `validate` tags and returns
// the translated field errors, or nil.
func Struct(v interface{}) map[string]string {
	payloadOnce.Do(func() {
		payload = govalidator.New(govalidator.WithRequiredStructEnabled())
		configure(payload)
	})
	err := payload.Struct(v)
	if err == nil {
		return nil
	}

	var ve govalidator.ValidationErrors
	if !errors.As(err, &ve) {
		return map[string]string{"detail": err.Error()}
	}
	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		// Drop the root type name: "Payload.questions[3].options" -> "questions[3].options".
		ns := fe.Namespace()
		if i := strings.IndexByte(ns, '.'); i >= 0 {
			ns = ns[i+1:]
		}
		fields[ns] = fe.Translate(translator())
	}
	return fields
}

// TranslateErrors takes a binding/validation error and returns a map of
// field name to human-readable error message. If the error is not a
// validation error, it returns a single-key map with "detail".
func TranslateErrors(err error) map[string]string {
	fields := make(map[string]string)

	var ve govalidator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			fields[fe.Field()] = fe.Translate(translator())
		}
		return fields
	}

	// Not a validation error (e.g., JSON syntax error).
	fields["detail"] = err.Error()
	return fields
}

// Bind binds and validates the request body into dst.
// Returns nil on success or a translated field error map on failure.
func Bind(c *gin.Context, dst interface{}) map[string]string {
	if err := c.ShouldBindJSON(dst); err != nil {
		return TranslateErrors(err)
	}
	return nil
}
