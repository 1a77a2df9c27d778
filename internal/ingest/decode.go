package ingest

import (
	"bytes"
	"context"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"listing-radar/internal/listing"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Sink accepts decoded observations. service.Service satisfies it.
type Sink interface {
	Enqueue(ctx context.Context, obs listing.Observation) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, obs listing.Observation) error

// Enqueue calls f.
func (f SinkFunc) Enqueue(ctx context.Context, obs listing.Observation) error {
	return f(ctx, obs)
}

// Decode parses one JSON observation. Prices may be JSON numbers or strings.
func Decode(data []byte) (listing.Observation, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return listing.Observation{}, fmt.Errorf("%w: empty payload", listing.ErrInvalidObservation)
	}
	var obs listing.Observation
	if err := json.Unmarshal(data, &obs); err != nil {
		return listing.Observation{}, fmt.Errorf("%w: %v", listing.ErrInvalidObservation, err)
	}
	return obs.Normalize(), nil
}
