package exchange

import (
	"strings"

	"github.com/shopspring/decimal"

	"crossarb/internal/model"
)

// concatSymbol is the BASEQUOTE form used by Binance and Wallex.
func concatSymbol(p model.Pair) string {
	return p.Base + p.Quote
}

// splitConcatSymbol recovers a pair from a BASEQUOTE symbol by matching a known quote suffix.
func splitConcatSymbol(symbol string, quotes []string) (model.Pair, bool) {
	symbol = strings.ToUpper(symbol)
	for _, q := range quotes {
		if len(symbol) > len(q) && strings.HasSuffix(symbol, q) {
			return model.Pair{Base: symbol[:len(symbol)-len(q)], Quote: q}, true
		}
	}
	return model.Pair{}, false
}

var krakenAliases = map[string]string{
	"XBT": "BTC",
	"XDG": "DOGE",
}

// krakenLegacy lists the assets Kraken still reports with an X (crypto) or Z (fiat) prefix.
// Newer listings such as ZETA or XION carry no prefix and must be left alone.
var krakenLegacy = map[string]bool{
	"XXBT": true, "XETH": true, "XLTC": true, "XXRP": true, "XXLM": true, "XXMR": true,
	"XZEC": true, "XETC": true, "XMLN": true, "XREP": true, "XXDG": true,
	"ZUSD": true, "ZEUR": true, "ZGBP": true, "ZCAD": true, "ZJPY": true, "ZAUD": true,
}

// krakenCurrency maps a Kraken asset code (XXBT, ZEUR, XBT, ETH) to the common code.
func krakenCurrency(code string) string {
	code = strings.ToUpper(code)
	if krakenLegacy[code] {
		code = code[1:]
	}
	if alias, ok := krakenAliases[code]; ok {
		return alias
	}
	return code
}

// krakenCode maps a common currency code to the Kraken websocket code.
func krakenCode(currency string) string {
	for k, v := range krakenAliases {
		if v == currency {
			return k
		}
	}
	return currency
}

// krakenWSPair renders a pair as a Kraken websocket name, e.g. XBT/EUR.
func krakenWSPair(p model.Pair) string {
	return krakenCode(p.Base) + "/" + krakenCode(p.Quote)
}

// formatNumber renders a float without exponent and without float noise.
func formatNumber(v float64) string {
	return decimal.NewFromFloat(v).String()
}
