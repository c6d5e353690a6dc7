package arbitrage

import (
	"fmt"

	"github.com/shopspring/decimal"

	"crossarb/internal/model"
)

const (
	amountPlaces = 4
	pricePlaces  = 5
)

// Sizer turns a spread into an executable trade intent.
type Sizer struct {
	// FeeMargin is the share of each balance held back for fees, e.g. 0.005.
	FeeMargin float64
	// PriceOffset loosens both limit prices to improve fill probability, e.g. 0.001.
	PriceOffset float64
}

// Size bounds the trade by notional (given in quote currency), displayed depth on both legs
// and the balances on both venues. The amount is floored to 4 decimals and never exceeds
// either leg's depth or the funds checked for it. Quote funds are checked at the spread's
// buy price; the protective offset on the buy limit is paid out of FeeMargin.
// Sizing runs in decimal so amounts that land on a 1e-4 tick are not floored one tick short.
func (s Sizer) Size(sp model.Spread, minNotional, maxNotional float64, sellBalance, buyBalance model.BalanceSnapshot) (model.TradeIntent, error) {
	if sp.SellPrice <= 0 || sp.BuyPrice <= 0 {
		return model.TradeIntent{}, fmt.Errorf("%s: %w: non-positive price", sp.Pair, ErrNoQuote)
	}
	sellPrice := decimal.NewFromFloat(sp.SellPrice)
	buyPrice := decimal.NewFromFloat(sp.BuyPrice)
	sellSize := decimal.NewFromFloat(sp.SellSize)
	buySize := decimal.NewFromFloat(sp.BuySize)

	minAmount := decimal.NewFromFloat(minNotional).Div(sellPrice)
	maxAmount := decimal.Max(decimal.NewFromFloat(maxNotional).Div(sellPrice), minAmount)

	if minAmount.GreaterThan(sellSize) || minAmount.GreaterThan(buySize) {
		return model.TradeIntent{}, fmt.Errorf("%s: %w: need %s, book shows sell %.8f buy %.8f",
			sp.Pair, ErrInsufficientDepth, minAmount.StringFixed(8), sp.SellSize, sp.BuySize)
	}
	amount := decimal.Min(maxAmount, sellSize, buySize)

	sellExec, buyExec := s.execPrices(sp.SellPrice, sp.BuyPrice)
	if sellExec <= 0 {
		return model.TradeIntent{}, fmt.Errorf("%s: %w: sell price %g below the 1e-5 tick", sp.Pair, ErrNoQuote, sp.SellPrice)
	}

	keep := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(s.FeeMargin))
	baseFunds := keep.Mul(decimal.NewFromFloat(sellBalance.Total(sp.Pair.Base)))
	quoteFunds := keep.Mul(decimal.NewFromFloat(buyBalance.Total(sp.Pair.Quote))).Div(buyPrice)
	amount = decimal.Min(amount, baseFunds, quoteFunds)
	if amount.LessThan(minAmount) {
		return model.TradeIntent{}, fmt.Errorf("%s: %w: need %s %s, %s holds %.8f %s, %s can buy %s",
			sp.Pair, ErrInsufficientFunds, minAmount.StringFixed(8), sp.Pair.Base,
			sp.SellVenue, sellBalance.Total(sp.Pair.Base), sp.Pair.Base, sp.BuyVenue, quoteFunds.StringFixed(8))
	}

	truncated := amount.Truncate(amountPlaces)
	if !truncated.IsPositive() {
		return model.TradeIntent{}, fmt.Errorf("%s: %w: %s truncates to zero", sp.Pair, ErrInsufficientFunds, amount.String())
	}

	return model.TradeIntent{
		Pair:          sp.Pair,
		Amount:        truncated.InexactFloat64(),
		MinAmount:     minAmount.InexactFloat64(),
		SellVenue:     sp.SellVenue,
		SellPrice:     sellExec,
		BuyVenue:      sp.BuyVenue,
		BuyPrice:      buyExec,
		SpreadPercent: sp.SpreadPercent,
	}, nil
}

// execPrices applies the protective offset: the sell limit is floored and the buy limit
// ceiled at 5 decimals.
func (s Sizer) execPrices(sellPrice, buyPrice float64) (sellExec, buyExec float64) {
	offset := decimal.NewFromFloat(s.PriceOffset)
	one := decimal.NewFromInt(1)
	sellExec, _ = decimal.NewFromFloat(sellPrice).Mul(one.Sub(offset)).RoundFloor(pricePlaces).Float64()
	buyExec, _ = decimal.NewFromFloat(buyPrice).Mul(one.Add(offset)).RoundCeil(pricePlaces).Float64()
	return sellExec, buyExec
}
