package main

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddsboard/market-engine/internal/adapter"
)

const sampleExport = `{
  "markets": [
    {"id": "rain", "name": "Rain?", "podd": 0.5, "status": "resolved", "outcome": "YES"},
    {"id": "snow", "name": "Snow?", "podd": 0.6}
  ],
  "bets": [
    {"id": "1", "mId": "rain", "uId": "alice", "prediction": true,  "amt": 100, "podd": 0.5, "createdAt": "2024-03-01 10:00:00"},
    {"id": "2", "mId": "rain", "uId": "bob",   "prediction": false, "amt": 100, "podd": 0.5, "createdAt": "2024-03-01 10:01:00"},
    {"id": "3", "mId": "snow", "uId": "carol", "prediction": true,  "amt": 50,  "podd": 0.5, "createdAt": "2024-03-01 10:02:00"}
  ]
}`

func TestReplay(t *testing.T) {
	ex, err := adapter.DecodeExport(strings.NewReader(sampleExport))
	require.NoError(t, err)

	snap, err := replay(ex, decimal.NewFromInt(1000))
	require.NoError(t, err)

	require.Len(t, snap.positions, 3)
	carol := snap.positions[2]
	assert.Equal(t, "carol", carol.UserID)
	assert.True(t, carol.CurrentPrice.Equal(decimal.NewFromFloat(0.6)), "carol marked at %s", carol.CurrentPrice)
	assert.True(t, carol.UnrealizedGain.Equal(decimal.NewFromInt(10)), "carol unrealized %s", carol.UnrealizedGain)

	require.Len(t, snap.board, 3)
	assert.Equal(t, "alice", snap.board[0].UserID)
	assert.True(t, snap.board[0].Balance.Equal(decimal.NewFromInt(1100)), "alice balance %s", snap.board[0].Balance)
	assert.True(t, snap.board[0].PercentChange.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, "carol", snap.board[1].UserID)
	assert.Equal(t, "bob", snap.board[2].UserID)
	assert.True(t, snap.board[2].Balance.Equal(decimal.NewFromInt(900)))
}

func TestReplay_UnknownMarket(t *testing.T) {
	ex, err := adapter.DecodeExport(strings.NewReader(`{"markets": [], "bets": [
	  {"id": "1", "mId": "gone", "uId": "alice", "prediction": true, "amt": 10, "podd": 0.5}
	]}`))
	require.NoError(t, err)

	_, err = replay(ex, decimal.NewFromInt(1000))
	assert.Error(t, err)
}
