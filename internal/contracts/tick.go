package contracts

import "time"

// Tick is one discrete market observation driving the simulation:
// the trade price for the step and the volume the market can absorb
// or supply at that price. Ticks arrive in non-decreasing time order.
type Tick struct {
	Time   time.Time `json:"time"`
	Price  float64   `json:"price"`
	Volume float64   `json:"volume"`
}
