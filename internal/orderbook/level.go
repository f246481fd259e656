package orderbook

import "mboflow/models"

// Order is a resting order and a node in its level's intrusive FIFO list.
type Order struct {
	ID    models.OrderID
	Price models.Price
	Qty   models.Quantity
	Side  models.Side

	prev  *Order
	next  *Order
	level *PriceLevel
}

func (o *Order) reset() {
	*o = Order{}
}

// PriceLevel is the FIFO queue of orders resting at one price.
type PriceLevel struct {
	Price      models.Price
	TotalQty   uint64
	OrderCount uint32

	head *Order
	tail *Order
}

func (l *PriceLevel) reset(price models.Price) {
	*l = PriceLevel{Price: price}
}

// Enqueue appends o at the back of the queue.
func (l *PriceLevel) Enqueue(o *Order) {
	o.level = l
	o.next = nil
	if l.tail == nil {
		o.prev = nil
		l.head = o
		l.tail = o
	} else {
		l.tail.next = o
		o.prev = l.tail
		l.tail = o
	}
	l.TotalQty += uint64(o.Qty)
	l.OrderCount++
}

// Remove unlinks o, which must belong to l.
func (l *PriceLevel) Remove(o *Order) {
	if o.prev != nil {
		o.prev.next = o.next
	} else {
		l.head = o.next
	}
	if o.next != nil {
		o.next.prev = o.prev
	} else {
		l.tail = o.prev
	}
	o.prev = nil
	o.next = nil
	o.level = nil
	l.TotalQty -= uint64(o.Qty)
	l.OrderCount--
}

// reduce lowers the quantity of a queued order by qty, which must not
// exceed its remaining quantity.
func (l *PriceLevel) reduce(o *Order, qty models.Quantity) {
	o.Qty -= qty
	l.TotalQty -= uint64(qty)
}

// Head returns the oldest order or nil.
func (l *PriceLevel) Head() *Order { return l.head }

// Empty reports whether the level has no orders.
func (l *PriceLevel) Empty() bool { return l.head == nil }

// Each visits orders front to back until fn returns false.
func (l *PriceLevel) Each(fn func(*Order) bool) {
	for o := l.head; o != nil; o = o.next {
		if !fn(o) {
			return
		}
	}
}
