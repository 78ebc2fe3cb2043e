package contracts

import "time"

// Candle is one OHLCV bar of historical market data, the raw form
// backtests are fed from CSV files, the database or a live stream.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	Close  float64   `json:"close"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Volume float64   `json:"volume"`
}

// Tick collapses the candle into a single simulation tick. The price is
// the OHLC average, which smooths the bar into one representative trade
// rather than privileging open or close.
func (c Candle) Tick() Tick {
	return Tick{
		Time:   c.Time,
		Price:  (c.Open + c.Close + c.High + c.Low) / 4,
		Volume: c.Volume,
	}
}
