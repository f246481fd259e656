package generator

import "fmt"

// MarketCondition selects the message mix a synthetic file is built with.
type MarketCondition int

const (
	HighVolatility MarketCondition = iota
	FlashCrash
	BookChurn
	QuoteStuffing
	LargeOrderImbalance
	LiquidityDrain
	PriceJump
)

var conditionNames = map[MarketCondition]string{
	HighVolatility:      "HighVolatility",
	FlashCrash:          "FlashCrash",
	BookChurn:           "BookChurn",
	QuoteStuffing:       "QuoteStuffing",
	LargeOrderImbalance: "LargeOrderImbalance",
	LiquidityDrain:      "LiquidityDrain",
	PriceJump:           "PriceJump",
}

func (c MarketCondition) String() string {
	if name, ok := conditionNames[c]; ok {
		return name
	}
	return fmt.Sprintf("MarketCondition(%d)", int(c))
}

// ParseCondition maps a condition name to its value.
func ParseCondition(s string) (MarketCondition, error) {
	for c, name := range conditionNames {
		if name == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("invalid market condition: %s", s)
}

// DefaultConditions is the set generated when none is requested.
// QuoteStuffing is opt-in.
func DefaultConditions() []MarketCondition {
	return []MarketCondition{
		HighVolatility,
		FlashCrash,
		BookChurn,
		LargeOrderImbalance,
		LiquidityDrain,
		PriceJump,
	}
}

// mix is the per-message action distribution out of a roll in [0, 100].
type mix struct {
	add, cancel, modify, aggressive int
	minQty, maxQty                  uint32
	buyBias                         int
	moveMin, moveMax                int64
}

func (g *Generator) baseMix() mix {
	return mix{
		add:        25,
		cancel:     30,
		modify:     20,
		aggressive: 25,
		minQty:     g.params.MinQty,
		maxQty:     g.params.MaxQty,
		buyBias:    50,
		moveMin:    -10,
		moveMax:    10,
	}
}

func within(i, start, length int) bool {
	return i >= start && i < start+length
}

// mixFor returns the distribution for message i and applies the
// condition's own mid price shocks.
func (g *Generator) mixFor(c MarketCondition, i int) mix {
	m := g.baseMix()
	n := g.params.Messages
	tick := g.params.PriceTick

	switch c {
	case FlashCrash:
		if within(i, n/4, n/8) {
			m.cancel, m.add, m.aggressive, m.modify = 70, 10, 10, 10
			g.mid -= 5 * tick
		}
	case BookChurn:
		m.cancel, m.modify = 50, 40
		m.add = 100 - (m.cancel + m.modify)
		m.aggressive = 0
		m.minQty, m.maxQty = 1, 10
	case QuoteStuffing:
		m.add, m.cancel, m.modify = 70, 20, 0
		m.aggressive = 100 - (m.add + m.cancel)
		m.minQty, m.maxQty = 1, 5
	case LargeOrderImbalance:
		if within(i, n/3, n/6) {
			m.buyBias = 90
			m.maxQty = g.params.MaxQty * 5
		}
	case LiquidityDrain:
		if within(i, n/2, n/8) {
			m.cancel, m.add = 90, 5
			m.modify = 100 - (m.cancel + m.add)
			m.aggressive = 0
		}
	case PriceJump:
		if interval := n / 10; interval > 0 && i > 0 && i%interval == 0 {
			g.mid += 100 * tick
		}
	}
	return m
}
