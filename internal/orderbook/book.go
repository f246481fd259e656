// Package orderbook reconstructs a market-by-order book from MBO events.
//
// Two implementations share the same event handling and differ only in how
// price levels are indexed: MapBook keeps them in a B-tree, FlatBook in a
// sorted slice.
package orderbook

import (
	"fmt"

	"mboflow/models"
)

const (
	// NameMap is the benchmark label of the B-tree backed book.
	NameMap = "OrderBook"
	// NameFlat is the benchmark label of the slice backed book.
	NameFlat = "FlatOrderBook"
)

// Names lists the available implementations in benchmark order.
var Names = []string{NameMap, NameFlat}

// Book is an order book fed one MBO message at a time.
type Book interface {
	Apply(msg models.MboMsg)
	BestBid() models.Price
	BestAsk() models.Price
	Position() int64
	Levels(depth int) []models.Level
	OrderCount() int
	Name() string
}

// New returns the implementation registered under name.
func New(name string) (Book, error) {
	switch name {
	case NameMap:
		return NewMapBook(), nil
	case NameFlat:
		return NewFlatBook(), nil
	default:
		return nil, fmt.Errorf("unknown order book implementation %q", name)
	}
}

// OrderBook applies MBO events and uncrosses the book after each one.
// It is not safe for concurrent use.
type OrderBook struct {
	name     string
	bids     levelIndex
	asks     levelIndex
	orders   map[models.OrderID]*Order
	position int64

	orderPool *Pool[Order]
	levelPool *Pool[PriceLevel]
}

// NewMapBook returns a book whose levels live in B-trees.
func NewMapBook() *OrderBook {
	return newOrderBook(NameMap, newTreeIndex(true), newTreeIndex(false))
}

// NewFlatBook returns a book whose levels live in sorted slices.
func NewFlatBook() *OrderBook {
	return newOrderBook(NameFlat, newSliceIndex(true), newSliceIndex(false))
}

func newOrderBook(name string, bids, asks levelIndex) *OrderBook {
	return &OrderBook{
		name:      name,
		bids:      bids,
		asks:      asks,
		orders:    make(map[models.OrderID]*Order, 1024),
		orderPool: NewPool(func() *Order { return &Order{} }),
		levelPool: NewPool(func() *PriceLevel { return &PriceLevel{} }),
	}
}

func (b *OrderBook) Name() string { return b.name }

// Position is the signed sum of traded and filled sizes.
func (b *OrderBook) Position() int64 { return b.position }

// OrderCount is the number of resting orders.
func (b *OrderBook) OrderCount() int { return len(b.orders) }

// Apply dispatches msg by action and then matches crossed levels.
func (b *OrderBook) Apply(msg models.MboMsg) {
	switch msg.Action {
	case models.ActionAdd:
		b.Add(msg)
	case models.ActionCancel:
		b.Cancel(msg.OrderID)
	case models.ActionModify:
		b.Modify(msg)
	case models.ActionTrade:
		b.Trade(msg)
		b.updatePosition(msg)
	case models.ActionFill:
		b.Cancel(msg.OrderID)
		b.updatePosition(msg)
	case models.ActionClear:
		b.Clear()
	}
	b.Match()
}

func (b *OrderBook) updatePosition(msg models.MboMsg) {
	switch msg.Side {
	case models.SideBid:
		b.position += int64(msg.Size)
	case models.SideAsk:
		b.position -= int64(msg.Size)
	}
}

func (b *OrderBook) side(s models.Side) levelIndex {
	switch s {
	case models.SideBid:
		return b.bids
	case models.SideAsk:
		return b.asks
	default:
		return nil
	}
}

// Add queues a new order at the back of its price level. An order id that is
// already resting is replaced.
func (b *OrderBook) Add(msg models.MboMsg) {
	idx := b.side(msg.Side)
	if idx == nil {
		return
	}
	if _, ok := b.orders[msg.OrderID]; ok {
		b.Cancel(msg.OrderID)
	}

	o := b.orderPool.Get()
	o.reset()
	o.ID = msg.OrderID
	o.Price = msg.Price
	o.Qty = msg.Size
	o.Side = msg.Side

	l := idx.get(msg.Price)
	if l == nil {
		l = b.levelPool.Get()
		l.reset(msg.Price)
		idx.insert(l)
	}
	l.Enqueue(o)
	b.orders[o.ID] = o
}

// Cancel removes a resting order. Unknown ids are ignored.
func (b *OrderBook) Cancel(id models.OrderID) {
	o, ok := b.orders[id]
	if !ok {
		return
	}
	delete(b.orders, id)

	l := o.level
	l.Remove(o)
	if l.Empty() {
		b.side(o.Side).remove(l.Price)
		b.levelPool.Put(l)
	}
	b.orderPool.Put(o)
}

// Modify replaces an order, losing its queue priority.
func (b *OrderBook) Modify(msg models.MboMsg) {
	b.Cancel(msg.OrderID)
	b.Add(msg)
}

// Trade reduces a resting order by the traded size and removes it once
// exhausted.
func (b *OrderBook) Trade(msg models.MboMsg) {
	o, ok := b.orders[msg.OrderID]
	if !ok {
		return
	}
	if msg.Size >= o.Qty {
		b.Cancel(msg.OrderID)
		return
	}
	o.level.reduce(o, msg.Size)
}

// Clear removes every resting order.
func (b *OrderBook) Clear() {
	for id, o := range b.orders {
		delete(b.orders, id)
		b.orderPool.Put(o)
	}
	for _, idx := range []levelIndex{b.bids, b.asks} {
		idx.each(func(l *PriceLevel) bool {
			b.levelPool.Put(l)
			return true
		})
		idx.clear()
	}
}

// Match trades the heads of the best levels against each other while the
// book is crossed.
func (b *OrderBook) Match() {
	for {
		bid, ask := b.bids.best(), b.asks.best()
		if bid == nil || ask == nil || bid.Price < ask.Price {
			return
		}

		bo, ao := bid.Head(), ask.Head()
		qty := min(bo.Qty, ao.Qty)
		bid.reduce(bo, qty)
		ask.reduce(ao, qty)

		bidFilled := bo.Qty == 0
		askFilled := ao.Qty == 0
		if bidFilled {
			b.Cancel(bo.ID)
		}
		if askFilled {
			b.Cancel(ao.ID)
		}
		if !bidFilled && !askFilled {
			return
		}
	}
}

// BestBid is the highest bid price or 0 when there are no bids.
func (b *OrderBook) BestBid() models.Price {
	if l := b.bids.best(); l != nil {
		return l.Price
	}
	return 0
}

// BestAsk is the lowest ask price or 0 when there are no asks.
func (b *OrderBook) BestAsk() models.Price {
	if l := b.asks.best(); l != nil {
		return l.Price
	}
	return 0
}

// Depth returns the number of bid and ask levels.
func (b *OrderBook) Depth() (bids, asks int) {
	return b.bids.len(), b.asks.len()
}

// Levels pairs the n-th best ask with the n-th best bid, zero filling the
// shorter side. depth <= 0 returns every level.
func (b *OrderBook) Levels(depth int) []models.Level {
	bids := collect(b.bids, depth)
	asks := collect(b.asks, depth)

	n := max(len(bids), len(asks))
	out := make([]models.Level, n)
	for i := 0; i < n; i++ {
		if i < len(asks) {
			out[i].AskCount = asks[i].OrderCount
			out[i].AskPrice = asks[i].Price
			out[i].AskSize = asks[i].TotalQty
		}
		if i < len(bids) {
			out[i].BidCount = bids[i].OrderCount
			out[i].BidPrice = bids[i].Price
			out[i].BidSize = bids[i].TotalQty
		}
	}
	return out
}

func collect(idx levelIndex, depth int) []*PriceLevel {
	n := idx.len()
	if depth > 0 && depth < n {
		n = depth
	}
	out := make([]*PriceLevel, 0, n)
	idx.each(func(l *PriceLevel) bool {
		out = append(out, l)
		return len(out) < n
	})
	return out
}
