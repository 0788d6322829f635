package adapter

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddsboard/market-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestDecodeMarket_LegacyShapes(t *testing.T) {
	for _, payload := range []string{
		`{"mid": 7, "name": "Rain?", "podd": 0.35, "volume": 120, "end_date": "2025-09-01T00:00:00Z"}`,
		`{"mId": "7", "name": "Rain?", "podd": "0.35", "volume": "120", "end_date": "Mon, 01 Sep 2025 00:00:00 GMT"}`,
	} {
		m, err := DecodeMarket([]byte(payload))
		require.NoError(t, err, payload)
		assert.Equal(t, "7", m.ID)
		assert.Equal(t, "Rain?", m.Name)
		assert.True(t, d(0.35).Equal(m.Probability), "probability %s", m.Probability)
		assert.True(t, d(120).Equal(m.Volume))
		require.NotNil(t, m.EndDate)
		assert.True(t, time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC).Equal(*m.EndDate))
		assert.Equal(t, model.StatusOpen, m.Status)
	}
}

func TestDecodeMarket_DecimalOddsInverted(t *testing.T) {
	m, err := DecodeMarket([]byte(`{"mId": 1, "name": "x", "podd": 4}`))
	require.NoError(t, err)
	assert.True(t, d(0.25).Equal(m.Probability), "got %s", m.Probability)
}

func TestDecodeMarket_DefaultsAndOutcome(t *testing.T) {
	m, err := DecodeMarket([]byte(`{"id": "m1", "name": "x"}`))
	require.NoError(t, err)
	assert.True(t, d(0.5).Equal(m.Probability))
	assert.True(t, d(0.5).Equal(m.Opening()), "opening %s", m.Opening())

	m, err = DecodeMarket([]byte(`{"id": "m1", "name": "x", "probability": 0.9, "opening_probability": 0.8}`))
	require.NoError(t, err)
	assert.True(t, d(0.8).Equal(m.Opening()), "opening %s", m.Opening())

	m, err = DecodeMarket([]byte(`{"id": "m1", "name": "x", "outcome": "no"}`))
	require.NoError(t, err)
	require.NotNil(t, m.Outcome)
	assert.Equal(t, model.SideNo, *m.Outcome)
	assert.Equal(t, model.StatusResolved, m.Status)
}

func TestDecodeMarket_Invalid(t *testing.T) {
	for _, payload := range []string{
		`not json`,
		`{"name": "no id"}`,
		`{"mid": 1, "podd": true}`,
		`{"mid": 1, "end_date": "next tuesday"}`,
		`{"mid": {"nested": 1}}`,
	} {
		_, err := DecodeMarket([]byte(payload))
		assert.ErrorIs(t, err, ErrInvalidPayload, payload)
	}
}

func TestDecodeBet_LegacyShapes(t *testing.T) {
	tests := []struct {
		payload string
		side    model.Side
		amount  float64
	}{
		{`{"bId": 1, "uId": 2, "mId": 3, "podd": 0.4, "amt": 50, "yes": true, "createdAt": "2025-01-02 03:04:05"}`, model.SideYes, 50},
		{`{"bId": 1, "uId": 2, "mId": 3, "podd": 0.4, "amt": -20, "yes": 0, "createdAt": "2025-01-02 03:04:05"}`, model.SideNo, -20},
		{`{"bet_id": 1, "user_id": 2, "market_id": 3, "odds_at_bet": 0.4, "amount": 50, "prediction": "YES", "createdAt": "2025-01-02T03:04:05"}`, model.SideYes, 50},
		{`{"id": "1", "user_id": "2", "market_id": "3", "probability": "0.4", "amount": "50", "side": "NO", "created_at": "2025-01-02T03:04:05Z"}`, model.SideNo, 50},
	}
	want := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	for _, tt := range tests {
		b, err := DecodeBet([]byte(tt.payload))
		require.NoError(t, err, tt.payload)
		assert.Equal(t, "1", b.ID)
		assert.Equal(t, "2", b.UserID)
		assert.Equal(t, "3", b.MarketID)
		assert.Equal(t, tt.side, b.Side)
		assert.True(t, d(tt.amount).Equal(b.Amount), "amount %s", b.Amount)
		assert.True(t, d(0.4).Equal(b.Probability))
		assert.True(t, want.Equal(b.CreatedAt), "created %v", b.CreatedAt)
	}
}

func TestDecodeBet_Invalid(t *testing.T) {
	for _, payload := range []string{
		`{"uId": 2, "mId": 3, "podd": 0.4, "amt": 5, "yes": true}`,
		`{"bId": 1, "uId": 2, "mId": 3, "podd": 0.4, "amt": 5}`,
		`{"bId": 1, "uId": 2, "mId": 3, "podd": 0.4, "yes": true}`,
		`{"bId": 1, "uId": 2, "mId": 3, "amt": 5, "yes": true}`,
		`{"bId": 1, "uId": 2, "mId": 3, "podd": 0.4, "amt": 5, "yes": 2}`,
		`{"bId": 1, "uId": 2, "mId": 3, "podd": 0.4, "amt": 5, "yes": "maybe"}`,
	} {
		_, err := DecodeBet([]byte(payload))
		assert.ErrorIs(t, err, ErrInvalidPayload, payload)
	}
}

func TestDecodeBetRequest(t *testing.T) {
	req, err := DecodeBetRequest([]byte(`{"user_id": "alice", "side": "yes", "amount": "25.50"}`))
	require.NoError(t, err)
	assert.Equal(t, "alice", req.UserID)
	assert.Equal(t, model.SideYes, req.Side)
	assert.True(t, d(25.5).Equal(req.Amount))

	req, err = DecodeBetRequest([]byte(`{"uId": 9, "prediction": false, "amt": 10}`))
	require.NoError(t, err)
	assert.Equal(t, "9", req.UserID)
	assert.Equal(t, model.SideNo, req.Side)

	_, err = DecodeBetRequest([]byte(`{"side": "YES", "amount": 1}`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
	_, err = DecodeBetRequest([]byte(`{"user_id": "a", "amount": 1}`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
	_, err = DecodeBetRequest([]byte(`{"user_id": "a", "side": "YES"}`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestDecodeExport(t *testing.T) {
	export := `{
		"markets": [{"mid": 1, "name": "Rain?", "podd": 0.5, "volume": 100}],
		"bets": [
			{"bId": 10, "uId": 1, "mId": 1, "podd": 0.5, "amt": 100, "yes": true, "createdAt": "2025-01-01 10:00:00"},
			{"bId": 11, "uId": 1, "mId": 1, "podd": 0.75, "amt": -150, "yes": true, "createdAt": "2025-01-01 11:00:00"}
		]
	}`
	out, err := DecodeExport(strings.NewReader(export))
	require.NoError(t, err)
	require.Len(t, out.Markets, 1)
	require.Len(t, out.Bets, 2)
	assert.True(t, out.Bets[1].IsSell())

	_, err = DecodeExport(strings.NewReader(`{"bets": [{"bId": 1}]}`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
	assert.Contains(t, err.Error(), "bets[0]")
}
