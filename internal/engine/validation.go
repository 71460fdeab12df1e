package engine

import (
	"strings"

	"github.com/getmentor/consultations-api/internal/models"
	apperrors "github.com/getmentor/consultations-api/pkg/errors"
	"github.com/go-playground/validator/v10"
)

// newValidator returns a validator reading the same `binding` tags gin uses,
// so payloads are checked identically whether they arrive over HTTP or not.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.SetTagName("binding")
	return v
}

// validatePayload runs struct validation and maps failures to ErrInvalidInput
func validatePayload(v *validator.Validate, payload any) error {
	err := v.Struct(payload)
	if err == nil {
		return nil
	}

	if fieldErrors, ok := err.(validator.ValidationErrors); ok && len(fieldErrors) > 0 {
		fe := fieldErrors[0]
		return apperrors.InvalidInputError(lowerFirst(fe.Field()), "failed '"+fe.Tag()+"' check")
	}
	return apperrors.InvalidInputError("payload", err.Error())
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func validateRequestPayload(v *validator.Validate, in *models.CreateRequestPayload) ([]models.Date, error) {
	if err := validatePayload(v, in); err != nil {
		return nil, err
	}
	if in.BudgetMin > in.BudgetMax {
		return nil, apperrors.InvalidInputError("budgetMax", "must not be lower than budgetMin")
	}

	dates := make([]models.Date, 0, len(in.PreferredDates))
	seen := make(map[models.Date]bool, len(in.PreferredDates))
	for _, raw := range in.PreferredDates {
		d, err := models.ParseDate(string(raw))
		if err != nil {
			return nil, apperrors.InvalidInputError("preferredDates", err.Error())
		}
		if seen[d] {
			return nil, apperrors.InvalidInputError("preferredDates", "duplicate date "+string(d))
		}
		seen[d] = true
		dates = append(dates, d)
	}

	for _, r := range in.PreferredTimes {
		if err := r.Validate(); err != nil {
			return nil, apperrors.InvalidInputError("preferredTimes", err.Error())
		}
	}
	return dates, nil
}

func validateOfferPayload(v *validator.Validate, in *models.SubmitOfferPayload) (models.Date, error) {
	if err := validatePayload(v, in); err != nil {
		return "", err
	}
	d, err := models.ParseDate(string(in.OfferedDate))
	if err != nil {
		return "", apperrors.InvalidInputError("offeredDate", err.Error())
	}
	window := models.TimeRange{Start: in.OfferedStartTime, End: in.OfferedEndTime}
	if err := window.Validate(); err != nil {
		return "", apperrors.InvalidInputError("offeredStartTime", err.Error())
	}
	return d, nil
}
