package utils

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	// Promo codes are stored upper-cased
	promoCodeRegex = regexp.MustCompile(`^[A-Z0-9_-]{3,32}$`)
	emailRegex     = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
)

// ValidateStruct validates struct
func ValidateStruct(obj interface{}) error {
	if err := binding.Validator.ValidateStruct(obj); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// BindingError converts a gin binding failure into an invalid-param AppError.
func BindingError(err error) *AppError {
	return formatValidationError(err)
}

// formatValidationError formats validation error
func formatValidationError(err error) *AppError {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		var messages []string
		for _, fieldError := range validationErrors {
			messages = append(messages, getFieldErrorMessage(fieldError))
		}
		return NewError(CodeInvalidParam, strings.Join(messages, "; "))
	}
	return NewErrorWithErr(CodeInvalidParam, "invalid request body", err)
}

// getFieldErrorMessage gets field error message
func getFieldErrorMessage(fieldError validator.FieldError) string {
	field := camelToSnake(fieldError.Field())
	param := fieldError.Param()

	switch fieldError.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, param)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "positive":
		return fmt.Sprintf("%s must be positive", field)
	case "nonnegative":
		return fmt.Sprintf("%s must be non-negative", field)
	case "promocode":
		return fmt.Sprintf("%s must be 3-32 letters, digits, '-' or '_'", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, param)
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, param)
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, param)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, param)
	default:
		return fmt.Sprintf("%s validation failed", field)
	}
}

// camelToSnake converts camelCase to snake_case
func camelToSnake(s string) string {
	runes := []rune(s)
	var result strings.Builder
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevLower := unicode.IsLower(runes[i-1])
			// keep runs of capitals together (e.g. ID, HTTPCode -> http_code)
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || (unicode.IsUpper(runes[i-1]) && nextLower) {
				result.WriteRune('_')
			}
		}
		result.WriteRune(unicode.ToLower(r))
	}
	return result.String()
}

// RegisterCustomValidators registers custom validators
func RegisterCustomValidators() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterValidation("email", validateEmail)
	v.RegisterValidation("positive", validatePositive)
	v.RegisterValidation("nonnegative", validateNonNegative)
	v.RegisterValidation("promocode", validatePromoCode)

	// money fields are validated as their float value
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// NormalizePromoCode trims and upper-cases a promo code.
func NormalizePromoCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsValidPromoCode reports whether code is well formed after normalization.
func IsValidPromoCode(code string) bool {
	return promoCodeRegex.MatchString(NormalizePromoCode(code))
}

func validatePromoCode(fl validator.FieldLevel) bool {
	return IsValidPromoCode(fl.Field().String())
}

func validateEmail(fl validator.FieldLevel) bool {
	return emailRegex.MatchString(fl.Field().String())
}

// validatePositive validates positive number
func validatePositive(fl validator.FieldLevel) bool {
	switch fl.Field().Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return fl.Field().Int() > 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return fl.Field().Uint() > 0
	case reflect.Float32, reflect.Float64:
		return fl.Field().Float() > 0
	default:
		return false
	}
}

func validateNonNegative(fl validator.FieldLevel) bool {
	switch fl.Field().Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return fl.Field().Int() >= 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	case reflect.Float32, reflect.Float64:
		return fl.Field().Float() >= 0
	default:
		return false
	}
}

// ValidateID validates ID parameter
func ValidateID(id string) (int64, error) {
	if id == "" {
		return 0, NewError(CodeInvalidParam, "ID cannot be empty")
	}

	idInt, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, NewError(CodeInvalidParam, "ID must be a valid integer")
	}

	if idInt <= 0 {
		return 0, NewError(CodeInvalidParam, "ID must be positive")
	}

	return idInt, nil
}

// ParsePage reads page/size query values, falling back to 1/20.
func ParsePage(pageStr, sizeStr string) (int, int, error) {
	page, size := 1, 20
	var err error
	if pageStr != "" {
		if page, err = strconv.Atoi(pageStr); err != nil {
			return 0, 0, NewError(CodeInvalidParam, "page must be an integer")
		}
	}
	if sizeStr != "" {
		if size, err = strconv.Atoi(sizeStr); err != nil {
			return 0, 0, NewError(CodeInvalidParam, "size must be an integer")
		}
	}
	return page, size, ValidatePage(page, size)
}

// ValidatePage validates pagination parameters
func ValidatePage(page, pageSize int) error {
	if page <= 0 {
		return NewError(CodeInvalidParam, "page must be positive")
	}

	if pageSize <= 0 || pageSize > 100 {
		return NewError(CodeInvalidParam, "pageSize must be between 1 and 100")
	}

	return nil
}
