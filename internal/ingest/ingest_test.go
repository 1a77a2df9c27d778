package ingest

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"listing-radar/internal/listing"
)

func TestDecode(t *testing.T) {
	obs, err := Decode([]byte(`{"id":" 42 ","title":"Asus TUF 165hz","price":"8999.90","currency":"try"}`))
	require.NoError(t, err)
	require.Equal(t, "42", obs.ID)
	require.Equal(t, "TRY", obs.Currency)
	require.True(t, obs.Price.Equal(decimal.RequireFromString("8999.90")))

	obs, err = Decode([]byte(`{"id":"43","title":"MSI RTX 4070","price":600,"currency":"USD","url":"https://example.com/43"}`))
	require.NoError(t, err)
	require.True(t, obs.Price.Equal(decimal.NewFromInt(600)))
	require.Equal(t, "https://example.com/43", obs.URL)

	_, err = Decode([]byte(`{"id":`))
	require.ErrorIs(t, err, listing.ErrInvalidObservation)

	_, err = Decode([]byte("   "))
	require.ErrorIs(t, err, listing.ErrInvalidObservation)
}

type collectSink struct {
	got  []listing.Observation
	fail string
}

func (c *collectSink) Enqueue(_ context.Context, obs listing.Observation) error {
	if obs.ID == c.fail {
		return errors.New("rejected")
	}
	c.got = append(c.got, obs)
	return nil
}

func TestReadLines(t *testing.T) {
	input := strings.Join([]string{
		`# exported 2024-06-01`,
		`{"id":"1","title":"Logitech G305 wireless mouse","price":1200,"currency":"TRY"}`,
		``,
		`not json`,
		`{"id":"2","title":"Razer Viper","price":"1500","currency":"TRY"}`,
		`{"id":"3","title":"Rampage fare","price":300,"currency":"TRY"}`,
	}, "\n")

	sink := &collectSink{fail: "3"}
	stats, err := ReadLines(context.Background(), strings.NewReader(input), sink, zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, LineStats{Lines: 6, Delivered: 2, Malformed: 1, Failed: 1}, stats)
	require.Len(t, sink.got, 2)
	require.Equal(t, "2", sink.got[1].ID)
}

type fakeReader struct {
	msgs   []kafka.Message
	closed bool
}

func (f *fakeReader) ReadMessage(context.Context) (kafka.Message, error) {
	if len(f.msgs) == 0 {
		return kafka.Message{}, io.EOF
	}
	m := f.msgs[0]
	f.msgs = f.msgs[1:]
	return m, nil
}

func (f *fakeReader) Close() error {
	f.closed = true
	return nil
}

func TestKafkaConsumerSkipsMalformed(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{
		{Value: []byte(`{"id":"k1","title":"Asus ROG 240hz","price":9000,"currency":"TRY"}`)},
		{Value: []byte(`{{{`), Offset: 1},
		{Value: []byte(`{"id":"k2","title":"Msi 4080","price":40000,"currency":"TRY"}`), Offset: 2},
	}}
	sink := &collectSink{}

	err := NewKafkaConsumerWithReader(reader, sink, zerolog.Nop()).Run(context.Background())
	require.NoError(t, err)
	require.True(t, reader.closed)
	require.Len(t, sink.got, 2)
	require.Equal(t, "k2", sink.got[1].ID)
}

func TestSinkFunc(t *testing.T) {
	var seen string
	sink := SinkFunc(func(_ context.Context, obs listing.Observation) error {
		seen = obs.ID
		return nil
	})
	require.NoError(t, sink.Enqueue(context.Background(), listing.Observation{ID: "x"}))
	require.Equal(t, "x", seen)
}
