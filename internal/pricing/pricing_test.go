package pricing

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	n, err := NewNormalizer("try", map[string]float64{"usd": 34.5, "EUR": 37.25})
	require.NoError(t, err)
	require.Equal(t, "TRY", n.Base())

	got, err := n.Normalize(decimal.NewFromInt(100), "USD")
	require.NoError(t, err)
	require.True(t, got.Equal(decimal.NewFromInt(3450)), got.String())

	got, err = n.Normalize(decimal.RequireFromString("1500.50"), "TRY")
	require.NoError(t, err)
	require.True(t, got.Equal(decimal.RequireFromString("1500.50")))

	require.True(t, n.Supports(" eur "))
	_, err = n.Normalize(decimal.NewFromInt(1), "GBP")
	require.True(t, errors.Is(err, ErrUnknownCurrency))
}

func TestNewNormalizerRejectsBadRates(t *testing.T) {
	_, err := NewNormalizer("", nil)
	require.Error(t, err)
	_, err = NewNormalizer("TRY", map[string]float64{"USD": 0})
	require.Error(t, err)
}

func TestVelocityFirstSighting(t *testing.T) {
	v := ComputeVelocity(nil, 1000, time.Now())
	require.Equal(t, Velocity{}, v)
	require.False(t, v.Defined)
}

func TestVelocityRepeatSighting(t *testing.T) {
	first := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	v := ComputeVelocity(&History{FirstSeen: first, InitialPrice: 1000}, 900, first.Add(10*time.Hour))
	require.True(t, v.Defined)
	require.InDelta(t, 10, v.HoursOnMarket, 1e-9)
	require.InDelta(t, 0.01, v.PerHour, 1e-12)

	// same-instant resighting is floored to a tenth of an hour
	v = ComputeVelocity(&History{FirstSeen: first, InitialPrice: 1000}, 990, first)
	require.Equal(t, MinHoursOnMarket, v.HoursOnMarket)
	require.InDelta(t, 0.1, v.PerHour, 1e-12)

	// rising prices produce negative velocity
	v = ComputeVelocity(&History{FirstSeen: first, InitialPrice: 1000}, 1100, first.Add(20*time.Hour))
	require.InDelta(t, -0.005, v.PerHour, 1e-12)

	v = ComputeVelocity(&History{FirstSeen: first, InitialPrice: 0}, 100, first.Add(time.Hour))
	require.True(t, v.Defined)
	require.Equal(t, 0.0, v.PerHour)
}
