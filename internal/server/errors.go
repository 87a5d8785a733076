package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	billingdomain "github.com/smallbiznis/meterbill/internal/billing/domain"
	overviewdomain "github.com/smallbiznis/meterbill/internal/billingoverview/domain"
	customerdomain "github.com/smallbiznis/meterbill/internal/customer/domain"
	notificationdomain "github.com/smallbiznis/meterbill/internal/notification/domain"
	paymentdomain "github.com/smallbiznis/meterbill/internal/payment/domain"
	perioddomain "github.com/smallbiznis/meterbill/internal/period/domain"
	readingdomain "github.com/smallbiznis/meterbill/internal/reading/domain"
	settingsdomain "github.com/smallbiznis/meterbill/internal/settings/domain"
	storedomain "github.com/smallbiznis/meterbill/internal/store/domain"
	"github.com/smallbiznis/meterbill/internal/store/kvstore"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

// bindError turns a JSON binding failure into field-level validation errors.
func bindError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		out := ValidationErrors{}
		for _, fe := range fieldErrs {
			field := lowerFirst(fe.Field())
			out.Errors = append(out.Errors, ValidationError{
				Field:   field,
				Code:    fe.Tag(),
				Message: field + " failed " + fe.Tag() + " validation",
			})
		}
		return &out
	}
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{{Field: field, Code: code, Message: message}},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if code, ok := validationCode(err); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{{
				Field:   validationField(code),
				Code:    code,
				Message: strings.ReplaceAll(code, "_", " "),
			}},
		}
	}

	switch {
	case errors.Is(err, billingdomain.ErrOverpayment):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "overpayment",
			Message: err.Error(),
		}
	case errors.Is(err, billingdomain.ErrConcurrentModification):
		return http.StatusConflict, errorPayload{
			Type:    "concurrent_modification",
			Message: "the bill was modified concurrently, retry the request",
		}
	case errors.Is(err, customerdomain.ErrDuplicateAccount):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "account number already in use",
		}
	case errors.Is(err, customerdomain.ErrOutstandingBalance):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "customer has an outstanding balance",
		}
	case errors.Is(err, perioddomain.ErrNoActivePeriod):
		return http.StatusConflict, errorPayload{
			Type:    "no_active_period",
			Message: "no active billing period",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, kvstore.ErrLockTimeout):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

var validationErrors = []error{
	ErrInvalidRequest,
	customerdomain.ErrInvalidID,
	customerdomain.ErrInvalidName,
	customerdomain.ErrInvalidAccountNumber,
	customerdomain.ErrInvalidMeterNumber,
	perioddomain.ErrInvalidID,
	perioddomain.ErrInvalidName,
	perioddomain.ErrInvalidDateRange,
	perioddomain.ErrSamePeriod,
	readingdomain.ErrInvalidID,
	readingdomain.ErrInvalidCustomerID,
	readingdomain.ErrInvalidReading,
	billingdomain.ErrInvalidID,
	billingdomain.ErrInvalidCustomerID,
	billingdomain.ErrInvalidPeriodID,
	billingdomain.ErrInvalidTariff,
	billingdomain.ErrNonPositiveAmount,
	billingdomain.ErrAmountPrecision,
	overviewdomain.ErrInvalidTop,
	overviewdomain.ErrInvalidRecent,
	paymentdomain.ErrInvalidID,
	paymentdomain.ErrInvalidBillID,
	paymentdomain.ErrInvalidMethod,
	settingsdomain.ErrInvalidKilowattPrice,
	settingsdomain.ErrInvalidSubscriptionFee,
	settingsdomain.ErrInvalidTaxRate,
	settingsdomain.ErrEmptyUpdate,
	notificationdomain.ErrInvalidID,
}

var notFoundErrors = []error{
	customerdomain.ErrNotFound,
	perioddomain.ErrNotFound,
	readingdomain.ErrNotFound,
	billingdomain.ErrNotFound,
	billingdomain.ErrCustomerNotFound,
	billingdomain.ErrPeriodNotFound,
	paymentdomain.ErrNotFound,
	paymentdomain.ErrBillNotFound,
	notificationdomain.ErrNotFound,
}

func validationCode(err error) (string, bool) {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return target.Error(), true
		}
	}
	return "", false
}

func isNotFoundError(err error) bool {
	for _, target := range notFoundErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func validationField(code string) string {
	switch code {
	case "invalid_reading":
		return "currentReading"
	case "non_positive_amount", "invalid_amount_precision":
		return "amount"
	case "invalid_date_range":
		return "endDate"
	case "same_period":
		return "fromPeriodId"
	case "empty_update", "invalid_request":
		return "request"
	}
	field := strings.TrimPrefix(code, "invalid_")
	parts := strings.Split(field, "_")
	for i := 1; i < len(parts); i++ {
		parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
	}
	return strings.Join(parts, "")
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// classifyErrorForLog feeds the request logger the same type the client sees.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	if status >= http.StatusInternalServerError {
		var pe *storedomain.PersistenceError
		if errors.As(err, &pe) {
			code = pe.Op + "." + pe.Step
		}
	}
	return payload.Type, code
}
