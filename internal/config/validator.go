package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
)

const memoryDatabase = ":memory:"

func newValidator() (*validator.Validate, ut.Translator, error) {
	validate := validator.New()

	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	trans, _ := uni.GetTranslator("en")
	if err := enTranslations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, nil, fmt.Errorf("failed to register default translations: %w", err)
	}

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := validate.RegisterValidation("sqlitepath", isSQLitePath); err != nil {
		return nil, nil, fmt.Errorf("failed to register sqlitepath validation: %w", err)
	}
	if err := validate.RegisterTranslation("sqlitepath", trans, func(ut ut.Translator) error {
		return ut.Add("sqlitepath", "{0} must be :memory: or a file in an existing directory", true)
	}, func(ut ut.Translator, fe validator.FieldError) string {
		t, _ := ut.T("sqlitepath", strings.TrimPrefix(fe.Namespace(), "Config."))
		return t
	}); err != nil {
		return nil, nil, fmt.Errorf("failed to register sqlitepath translation: %w", err)
	}

	return validate, trans, nil
}

// isSQLitePath accepts the in-memory database or a file path whose parent
// directory exists. The file itself is created on first open.
func isSQLitePath(fl validator.FieldLevel) bool {
	path := fl.Field().String()
	if path == "" {
		return false
	}
	if path == memoryDatabase || strings.HasPrefix(path, "file:") {
		return true
	}

	info, err := os.Stat(path)
	if err == nil {
		return !info.IsDir()
	}
	if !os.IsNotExist(err) {
		return false
	}

	dir, err := os.Stat(filepath.Dir(path))
	if err != nil {
		return false
	}
	return dir.IsDir()
}
