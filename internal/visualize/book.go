package visualize

import (
	"sort"

	"mboflow/models"
)

type restingOrder struct {
	price models.Price
	size  int64
	side  models.Side
}

// Book aggregates resting quantity per price. It tracks orders by id only
// to know what a cancel or modify removes, and keeps the running
// cumulative volume delta of trades.
type Book struct {
	bids   map[models.Price]int64
	asks   map[models.Price]int64
	active map[models.OrderID]restingOrder

	totalBid int64
	totalAsk int64
	cvd      int64
	trades   int
}

// NewBook returns an empty book.
func NewBook() *Book {
	return &Book{
		bids:   make(map[models.Price]int64),
		asks:   make(map[models.Price]int64),
		active: make(map[models.OrderID]restingOrder),
	}
}

func (b *Book) add(price models.Price, size int64, side models.Side) {
	switch side {
	case models.SideBid:
		b.bids[price] += size
		b.totalBid += size
	case models.SideAsk:
		b.asks[price] += size
		b.totalAsk += size
	}
}

func (b *Book) remove(o restingOrder) {
	var levels map[models.Price]int64
	switch o.side {
	case models.SideBid:
		levels = b.bids
		b.totalBid -= o.size
	case models.SideAsk:
		levels = b.asks
		b.totalAsk -= o.size
	default:
		return
	}
	levels[o.price] -= o.size
	if levels[o.price] <= 0 {
		delete(levels, o.price)
	}
}

// Apply updates the book with msg. Every record is dispatched on its
// action, including those with order id 0. Trades and fills only move the
// volume delta.
func (b *Book) Apply(msg models.MboMsg) {
	size := int64(msg.Size)
	switch msg.Action {
	case models.ActionAdd:
		b.active[msg.OrderID] = restingOrder{price: msg.Price, size: size, side: msg.Side}
		b.add(msg.Price, size, msg.Side)
	case models.ActionCancel:
		if old, ok := b.active[msg.OrderID]; ok {
			delete(b.active, msg.OrderID)
			b.remove(old)
		}
	case models.ActionModify:
		if old, ok := b.active[msg.OrderID]; ok {
			b.remove(old)
			b.active[msg.OrderID] = restingOrder{price: msg.Price, size: size, side: msg.Side}
			b.add(msg.Price, size, msg.Side)
		}
	case models.ActionTrade, models.ActionFill:
		switch msg.Side {
		case models.SideBid:
			b.cvd += size
			b.trades++
		case models.SideAsk:
			b.cvd -= size
			b.trades++
		}
	}
}

// BestBid is the highest bid price.
func (b *Book) BestBid() (models.Price, bool) {
	var best models.Price
	found := false
	for p := range b.bids {
		if !found || p > best {
			best, found = p, true
		}
	}
	return best, found
}

// BestAsk is the lowest ask price.
func (b *Book) BestAsk() (models.Price, bool) {
	var best models.Price
	found := false
	for p := range b.asks {
		if !found || p < best {
			best, found = p, true
		}
	}
	return best, found
}

func (b *Book) Totals() (bid, ask int64) { return b.totalBid, b.totalAsk }

func (b *Book) CVD() int64 { return b.cvd }

func (b *Book) Trades() int { return b.trades }

func (b *Book) Empty() bool { return len(b.bids) == 0 && len(b.asks) == 0 }

// LevelQty is the resting quantity at one price.
type LevelQty struct {
	Price models.Price
	Qty   int64
}

// Levels lists every bid then every ask level, each in ascending price.
func (b *Book) Levels() []LevelQty {
	out := make([]LevelQty, 0, len(b.bids)+len(b.asks))
	for _, m := range []map[models.Price]int64{b.bids, b.asks} {
		start := len(out)
		for p, q := range m {
			out = append(out, LevelQty{Price: p, Qty: q})
		}
		part := out[start:]
		sort.Slice(part, func(i, j int) bool { return part[i].Price < part[j].Price })
	}
	return out
}
