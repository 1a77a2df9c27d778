package listing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ErrInvalidObservation wraps every validation failure.
var ErrInvalidObservation = errors.New("invalid listing observation")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Observation is a single sighting of a listing as delivered by the scraper.
type Observation struct {
	ID       string          `json:"id" validate:"required,max=128"`
	Title    string          `json:"title" validate:"required,max=512"`
	URL      string          `json:"url" validate:"omitempty,url"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency" validate:"required,alpha,min=3,max=3"`
}

// Normalize trims whitespace and upper-cases the currency code.
func (o Observation) Normalize() Observation {
	o.ID = strings.TrimSpace(o.ID)
	o.Title = strings.TrimSpace(o.Title)
	o.URL = strings.TrimSpace(o.URL)
	o.Currency = strings.ToUpper(strings.TrimSpace(o.Currency))
	return o
}

// Validate rejects observations the engine must never see.
func (o Observation) Validate() error {
	if err := validate.Struct(o); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed %q", ErrInvalidObservation, strings.ToLower(fe.Field()), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidObservation, err)
	}
	if !o.Price.IsPositive() {
		return fmt.Errorf("%w: price must be positive, got %s", ErrInvalidObservation, o.Price.String())
	}
	return nil
}
