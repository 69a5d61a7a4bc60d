package validate

import (
	"fmt"
	"strings"

	"github.com/go-notify/internal/domain"
	"github.com/go-playground/validator/v10"
)

// v is the package-level singleton validator. It is initialised once at
// package load time. Any custom type registrations must be made during init()
// before the first call to Struct.
var v = validator.New()

func init() {
	v.RegisterValidation("notification_type", func(fl validator.FieldLevel) bool {
		return domain.NotificationType(fl.Field().String()).Valid()
	})
}

// Struct validates the given struct using its validate tags.
// Returns an error wrapping domain.ErrBadRequest or nil.
func Struct(s interface{}) error {
	if err := v.Struct(s); err != nil {
		ve, ok := err.(validator.ValidationErrors)
		if !ok {
			return fmt.Errorf("%v: %w", err, domain.ErrBadRequest)
		}
		var msgs []string
		for _, fe := range ve {
			msgs = append(msgs, fmt.Sprintf("field '%s' failed '%s'", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("%s: %w", strings.Join(msgs, "; "), domain.ErrBadRequest)
	}
	return nil
}
