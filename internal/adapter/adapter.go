// Package adapter translates the legacy JSON shapes produced by older
// clients and exports into the canonical model.
//
// Legacy payloads disagree on field names (mid, mId, bId, uId, podd, amt)
// and on types: IDs may be numbers or strings, the side may be a boolean,
// a 0/1 number or a "YES"/"NO" string. The engine only ever sees the
// canonical types.
package adapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oddsboard/market-engine/internal/market"
	"github.com/oddsboard/market-engine/internal/model"
)

// ErrInvalidPayload is returned for payloads that cannot be mapped.
var ErrInvalidPayload = errors.New("adapter: invalid payload")

// Accepted timestamp layouts, in order of preference. RFC1123 is what
// Flask's jsonify emits for datetimes.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC1123,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

type fields map[string]json.RawMessage

func parse(data []byte) (fields, error) {
	var f fields
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return f, nil
}

// lookup returns the first non-null value among keys.
func (f fields) lookup(keys ...string) (json.RawMessage, string, bool) {
	for _, k := range keys {
		if v, ok := f[k]; ok && string(v) != "null" {
			return v, k, true
		}
	}
	return nil, "", false
}

func (f fields) str(keys ...string) (string, error) {
	v, k, ok := f.lookup(keys...)
	if !ok {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return strings.TrimSpace(s), nil
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("%w: %s must be a string or number", ErrInvalidPayload, k)
}

func (f fields) dec(keys ...string) (decimal.Decimal, bool, error) {
	v, k, ok := f.lookup(keys...)
	if !ok {
		return decimal.Zero, false, nil
	}
	var d decimal.Decimal
	if err := json.Unmarshal(v, &d); err != nil {
		return decimal.Zero, false, fmt.Errorf("%w: %s must be numeric", ErrInvalidPayload, k)
	}
	return d, true, nil
}

func (f fields) side(keys ...string) (model.Side, bool, error) {
	v, k, ok := f.lookup(keys...)
	if !ok {
		return "", false, nil
	}
	var b bool
	if err := json.Unmarshal(v, &b); err == nil {
		return model.SideFromBool(b), true, nil
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		i, err := n.Int64()
		if err != nil || (i != 0 && i != 1) {
			return "", false, fmt.Errorf("%w: %s must be 0 or 1", ErrInvalidPayload, k)
		}
		return model.SideFromBool(i == 1), true, nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		if side, ok := model.ParseSide(s); ok {
			return side, true, nil
		}
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return model.SideFromBool(b), true, nil
		}
	}
	return "", false, fmt.Errorf("%w: %s is not a side", ErrInvalidPayload, k)
}

func (f fields) timestamp(keys ...string) (*time.Time, error) {
	s, err := f.str(keys...)
	if err != nil || s == "" {
		return nil, err
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: unrecognised timestamp %q", ErrInvalidPayload, s)
}

var one = decimal.NewFromInt(1)

// probability maps a legacy podd value. Most variants send the YES
// probability; some send a decimal-odds multiplier (>= 1), which is
// inverted.
func probability(podd decimal.Decimal) decimal.Decimal {
	if podd.GreaterThanOrEqual(one) {
		return one.Div(podd)
	}
	return podd
}

// DecodeMarket maps a legacy or canonical market object.
func DecodeMarket(data []byte) (model.Market, error) {
	f, err := parse(data)
	if err != nil {
		return model.Market{}, err
	}
	return decodeMarket(f)
}

func decodeMarket(f fields) (model.Market, error) {
	var m model.Market
	var err error

	if m.ID, err = f.str("id", "mid", "mId", "market_id"); err != nil {
		return m, err
	}
	if m.ID == "" {
		return m, fmt.Errorf("%w: market id is required", ErrInvalidPayload)
	}
	if m.Name, err = f.str("name"); err != nil {
		return m, err
	}
	if m.Description, err = f.str("description"); err != nil {
		return m, err
	}

	m.Probability = market.DefaultProbability
	if p, ok, err := f.dec("probability", "podd", "odds"); err != nil {
		return m, err
	} else if ok {
		m.Probability = probability(p)
	}
	if m.Volume, _, err = f.dec("volume"); err != nil {
		return m, err
	}
	if m.YesVolume, _, err = f.dec("yes_volume"); err != nil {
		return m, err
	}
	if m.NoVolume, _, err = f.dec("no_volume"); err != nil {
		return m, err
	}
	if m.OpeningProbability, _, err = f.dec("opening_probability"); err != nil {
		return m, err
	}
	if m.EndDate, err = f.timestamp("end_date", "endDate"); err != nil {
		return m, err
	}
	created, err := f.timestamp("created_at", "createdAt")
	if err != nil {
		return m, err
	}
	if created != nil {
		m.CreatedAt = *created
	}

	m.Status = model.StatusOpen
	if s, err := f.str("status"); err != nil {
		return m, err
	} else if s == model.StatusResolved {
		m.Status = model.StatusResolved
	}
	if outcome, ok, err := f.side("outcome"); err != nil {
		return m, err
	} else if ok {
		m.Outcome = &outcome
		m.Status = model.StatusResolved
	}
	return m, nil
}

// DecodeBet maps a legacy or canonical bet object. The amount keeps its
// sign: negative amounts are sells.
func DecodeBet(data []byte) (model.Bet, error) {
	f, err := parse(data)
	if err != nil {
		return model.Bet{}, err
	}
	return decodeBet(f)
}

func decodeBet(f fields) (model.Bet, error) {
	var b model.Bet
	var err error

	if b.ID, err = f.str("id", "bId", "bet_id"); err != nil {
		return b, err
	}
	if b.MarketID, err = f.str("market_id", "mId", "mid"); err != nil {
		return b, err
	}
	if b.UserID, err = f.str("user_id", "uId", "uid"); err != nil {
		return b, err
	}
	if b.ID == "" || b.MarketID == "" || b.UserID == "" {
		return b, fmt.Errorf("%w: bet requires id, market and user", ErrInvalidPayload)
	}

	side, ok, err := f.side("side", "yes", "prediction")
	if err != nil {
		return b, err
	}
	if !ok {
		return b, fmt.Errorf("%w: bet %s has no side", ErrInvalidPayload, b.ID)
	}
	b.Side = side

	amount, ok, err := f.dec("amount", "amt")
	if err != nil {
		return b, err
	}
	if !ok {
		return b, fmt.Errorf("%w: bet %s has no amount", ErrInvalidPayload, b.ID)
	}
	b.Amount = amount

	p, ok, err := f.dec("probability", "podd", "odds_at_bet")
	if err != nil {
		return b, err
	}
	if !ok {
		return b, fmt.Errorf("%w: bet %s has no probability", ErrInvalidPayload, b.ID)
	}
	b.Probability = probability(p)

	created, err := f.timestamp("created_at", "createdAt")
	if err != nil {
		return b, err
	}
	if created != nil {
		b.CreatedAt = *created
	}
	return b, nil
}

// BetRequest is a stake submitted by a client.
type BetRequest struct {
	UserID string
	Side   model.Side
	Amount decimal.Decimal
}

// DecodeBetRequest accepts {"user_id","side","amount"} as well as the
// legacy {"uId","prediction"|"yes","amt"} forms.
func DecodeBetRequest(data []byte) (BetRequest, error) {
	f, err := parse(data)
	if err != nil {
		return BetRequest{}, err
	}

	var req BetRequest
	if req.UserID, err = f.str("user_id", "uId", "uid"); err != nil {
		return req, err
	}
	if req.UserID == "" {
		return req, fmt.Errorf("%w: user_id is required", ErrInvalidPayload)
	}

	side, ok, err := f.side("side", "prediction", "yes")
	if err != nil {
		return req, err
	}
	if !ok {
		return req, fmt.Errorf("%w: side is required", ErrInvalidPayload)
	}
	req.Side = side

	amount, ok, err := f.dec("amount", "amt")
	if err != nil {
		return req, err
	}
	if !ok {
		return req, fmt.Errorf("%w: amount is required", ErrInvalidPayload)
	}
	req.Amount = amount
	return req, nil
}

// Export is a snapshot of markets and bets.
type Export struct {
	Markets []model.Market
	Bets    []model.Bet
}

// DecodeExport reads {"markets":[...],"bets":[...]} in any supported shape.
func DecodeExport(r io.Reader) (Export, error) {
	var raw struct {
		Markets []json.RawMessage `json:"markets"`
		Bets    []json.RawMessage `json:"bets"`
	}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return Export{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	var out Export
	for i, data := range raw.Markets {
		m, err := DecodeMarket(data)
		if err != nil {
			return Export{}, fmt.Errorf("markets[%d]: %w", i, err)
		}
		out.Markets = append(out.Markets, m)
	}
	for i, data := range raw.Bets {
		b, err := DecodeBet(data)
		if err != nil {
			return Export{}, fmt.Errorf("bets[%d]: %w", i, err)
		}
		out.Bets = append(out.Bets, b)
	}
	return out, nil
}
