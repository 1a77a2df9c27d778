package listing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func validObservation() Observation {
	return Observation{
		ID:       "1100223344",
		Title:    "Asus TUF 165hz monitör",
		URL:      "https://example.com/ilan/1100223344",
		Price:    decimal.NewFromInt(7500),
		Currency: "TRY",
	}
}

func TestValidateAcceptsWellFormed(t *testing.T) {
	require.NoError(t, validObservation().Validate())

	o := validObservation()
	o.URL = ""
	require.NoError(t, o.Validate())
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Observation){
		"missing id":     func(o *Observation) { o.ID = "" },
		"zero price":     func(o *Observation) { o.Price = decimal.Zero },
		"negative price": func(o *Observation) { o.Price = decimal.NewFromInt(-5) },
		"no currency":    func(o *Observation) { o.Currency = "" },
		"bad currency":   func(o *Observation) { o.Currency = "T1" },
		"missing title":  func(o *Observation) { o.Title = "" },
		"bad url":        func(o *Observation) { o.URL = "not a url" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			o := validObservation()
			mutate(&o)
			err := o.Validate()
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrInvalidObservation))
		})
	}
}

func TestNormalize(t *testing.T) {
	o := Observation{ID: " 42 ", Title: " Razer ", Currency: " usd "}.Normalize()
	require.Equal(t, "42", o.ID)
	require.Equal(t, "Razer", o.Title)
	require.Equal(t, "USD", o.Currency)
}
