package checkout

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/fault"
	"github.com/go-playground/validator/v10"
)

// msisdnPattern is the subscriber-number shape the mobile-money provider accepts: 254 followed by nine digits.
var msisdnPattern = regexp.MustCompile(`^254\d{9}$`)

// CustomerInfo is what the shopper types at checkout. Name may be empty for signed-in users.
type CustomerInfo struct {
	Name  string `validate:"omitempty,max=100"`
	Phone string `validate:"required,msisdn"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("msisdn", func(fl validator.FieldLevel) bool {
		return msisdnPattern.MatchString(fl.Field().String())
	})
	return v
}

// NormalizePhone strips spaces and a leading plus sign.
func NormalizePhone(phone string) string {
	phone = strings.ReplaceAll(strings.TrimSpace(phone), " ", "")
	return strings.TrimPrefix(phone, "+")
}

func (uc *InitiateCheckoutUseCase) validateCustomer(info CustomerInfo, userID string) error {
	if strings.TrimSpace(info.Name) == "" && userID == "" {
		return fault.Validation(fault.CodeInvalidCustomerInfo, "name is required for guest checkout")
	}
	if err := uc.validate.Struct(info); err != nil {
		return fault.Validation(fault.CodeInvalidCustomerInfo, describe(err))
	}
	return nil
}

func describe(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "msisdn":
			msgs = append(msgs, fmt.Sprintf("%s must be 12 digits starting with 254", field))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", field, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", field))
		}
	}
	return strings.Join(msgs, "; ")
}
