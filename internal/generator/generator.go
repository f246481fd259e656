// Package generator writes synthetic MBO files that stress an order book
// under different market conditions.
package generator

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"time"

	"mboflow/internal/dbn"
	"mboflow/logger"
	"mboflow/models"
)

const (
	DefaultMessages        = 500000
	DefaultInitialLevels   = 100
	DefaultInitialMidPrice = models.Price(100000000000)
	DefaultPriceTick       = models.Price(1000000)
	DefaultDataset         = "TEST_DATASET"
	DefaultSymbol          = "TEST"
)

// Params controls the size and shape of a generated file.
type Params struct {
	Messages        int
	InitialLevels   int
	InitialMidPrice models.Price
	PriceTick       models.Price
	MinQty          uint32
	MaxQty          uint32
	// Seed 0 seeds from the clock.
	Seed int64
}

// DefaultParams returns the stock half-million message configuration.
func DefaultParams() Params {
	return Params{
		Messages:        DefaultMessages,
		InitialLevels:   DefaultInitialLevels,
		InitialMidPrice: DefaultInitialMidPrice,
		PriceTick:       DefaultPriceTick,
		MinQty:          1,
		MaxQty:          100,
	}
}

func (p Params) validate() error {
	if p.Messages <= 0 {
		return fmt.Errorf("messages must be greater than 0")
	}
	if p.InitialLevels < 0 {
		return fmt.Errorf("initial levels must not be negative")
	}
	if p.InitialMidPrice <= 0 {
		return fmt.Errorf("initial mid price must be greater than 0")
	}
	if p.PriceTick <= 0 {
		return fmt.Errorf("price tick must be greater than 0")
	}
	if p.MinQty == 0 || p.MaxQty < p.MinQty {
		return fmt.Errorf("invalid quantity range [%d, %d]", p.MinQty, p.MaxQty)
	}
	return nil
}

// Sink receives generated messages in order.
type Sink interface {
	Encode(msg models.MboMsg) error
}

// Generator produces one condition's message stream. A Generator is used
// for a single run.
type Generator struct {
	params Params
	rng    *rand.Rand
	now    func() time.Time
	log    *logger.Entry

	mid    models.Price
	nextID models.OrderID
	seq    uint32

	// active tracks resting orders for cancel and modify, with pos giving
	// each id's slot in active.
	active []models.MboMsg
	pos    map[models.OrderID]int
}

// New validates params and returns a generator.
func New(params Params) (*Generator, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	seed := params.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{
		params: params,
		rng:    rand.New(rand.NewSource(seed)),
		now:    time.Now,
		log:    logger.GetLogger().WithComponent("generator"),
		mid:    params.InitialMidPrice,
		nextID: 1,
		pos:    make(map[models.OrderID]int),
	}, nil
}

// Metadata describes the file a run produces.
func (g *Generator) Metadata() models.Metadata {
	start := uint64(g.now().UnixNano())
	return models.Metadata{
		Version: 1,
		Dataset: DefaultDataset,
		Schema:  dbn.SchemaMBO,
		Start:   start,
		End:     start,
		Limit:   uint64(g.params.Messages),
		Symbols: []string{DefaultSymbol},
	}
}

// GenerateFile writes condition's stream to <dir>/<condition>.dbn and
// returns the path.
func GenerateFile(ctx context.Context, dir string, c MarketCondition, params Params) (string, error) {
	g, err := New(params)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, c.String()+".dbn")
	enc, err := dbn.Create(path, g.Metadata())
	if err != nil {
		return "", err
	}
	if err := g.Run(ctx, c, enc); err != nil {
		enc.Close()
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", path, err)
	}
	g.log.WithFields(logger.Fields{
		"condition": c.String(),
		"path":      path,
		"records":   enc.Written(),
	}).Info("generated test data")
	return path, nil
}

// Run seeds the book with resting levels and then emits the configured
// number of condition messages into sink.
func (g *Generator) Run(ctx context.Context, c MarketCondition, sink Sink) error {
	for i := 0; i < g.params.InitialLevels; i++ {
		offset := models.Price(i+1) * g.params.PriceTick
		for _, side := range []models.Side{models.SideBid, models.SideAsk} {
			msg := g.header()
			msg.Action = models.ActionAdd
			msg.Side = side
			msg.OrderID = g.newID()
			msg.Size = g.qty(g.params.MinQty, g.params.MaxQty)
			if side == models.SideBid {
				msg.Price = g.mid - offset
			} else {
				msg.Price = g.mid + offset
			}
			g.track(msg)
			if err := sink.Encode(msg); err != nil {
				return fmt.Errorf("failed to encode initial level: %w", err)
			}
		}
	}

	for i := 0; i < g.params.Messages; i++ {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		m := g.mixFor(c, i)
		msg := g.next(c, m)
		if err := sink.Encode(msg); err != nil {
			return fmt.Errorf("failed to encode message %d: %w", i, err)
		}
		if c != FlashCrash {
			g.mid += models.Price(g.between(m.moveMin, m.moveMax)) * g.params.PriceTick
		}
		g.clampMid()
	}
	return nil
}

func (g *Generator) next(c MarketCondition, m mix) models.MboMsg {
	msg := g.header()
	roll := g.rng.Intn(101)
	tick := g.params.PriceTick

	switch {
	case roll < m.add:
		msg.Action = models.ActionAdd
		msg.OrderID = g.newID()
		msg.Size = g.qty(m.minQty, m.maxQty)
		msg.Side = g.side(50)
		away := models.Price(g.between(1, 5))
		if c == QuoteStuffing {
			away = 50 + models.Price(g.between(1, 10))
			if msg.Side == models.SideBid {
				away = -away
			}
		} else if msg.Side == models.SideAsk {
			away = -away
		}
		msg.Price = g.mid + away*tick
		g.track(msg)
	case roll < m.add+m.cancel && len(g.active) > 0:
		o := g.pick()
		g.untrack(o.OrderID)
		msg.Action = models.ActionCancel
		msg.OrderID = o.OrderID
		msg.Price = o.Price
		msg.Side = o.Side
		msg.Size = o.Size
	case roll < m.add+m.cancel+m.modify && len(g.active) > 0:
		o := g.pick()
		msg.Action = models.ActionModify
		msg.OrderID = o.OrderID
		msg.Price = o.Price
		msg.Side = o.Side
		msg.Size = g.qty(m.minQty, m.maxQty)
		g.track(msg)
	case roll < m.add+m.cancel+m.modify+m.aggressive:
		// Crosses the spread and is left untracked.
		msg.Action = models.ActionAdd
		msg.OrderID = g.newID()
		msg.Size = g.qty(m.maxQty*2, m.maxQty*5)
		msg.Side = g.side(m.buyBias)
		away := models.Price(g.between(5, 15)) * tick
		if msg.Side == models.SideBid {
			msg.Price = g.mid + away
		} else {
			msg.Price = g.mid - away
		}
	default:
		msg.Action = models.ActionNone
		msg.Side = models.SideNone
	}
	return msg
}

func (g *Generator) header() models.MboMsg {
	ts := uint64(g.now().UnixNano())
	g.seq++
	return models.MboMsg{
		Header: models.RecordHeader{
			Length:  models.MboRecordSize / 4,
			RType:   models.RTypeMBO,
			TsEvent: ts,
		},
		TsRecv:   ts,
		Sequence: g.seq,
	}
}

func (g *Generator) newID() models.OrderID {
	id := g.nextID
	g.nextID++
	return id
}

// between draws uniformly from [lo, hi].
func (g *Generator) between(lo, hi int64) int64 {
	return lo + g.rng.Int63n(hi-lo+1)
}

func (g *Generator) qty(lo, hi uint32) models.Quantity {
	return models.Quantity(g.between(int64(lo), int64(hi)))
}

// side returns B with probability buyBias percent.
func (g *Generator) side(buyBias int) models.Side {
	if buyBias == 50 {
		if g.rng.Intn(2) == 0 {
			return models.SideBid
		}
		return models.SideAsk
	}
	if g.rng.Intn(100) < buyBias {
		return models.SideBid
	}
	return models.SideAsk
}

func (g *Generator) clampMid() {
	lo, hi := g.params.InitialMidPrice/2, g.params.InitialMidPrice*2
	g.mid = min(max(g.mid, lo), hi)
}

func (g *Generator) track(msg models.MboMsg) {
	if i, ok := g.pos[msg.OrderID]; ok {
		g.active[i] = msg
		return
	}
	g.pos[msg.OrderID] = len(g.active)
	g.active = append(g.active, msg)
}

func (g *Generator) untrack(id models.OrderID) {
	i, ok := g.pos[id]
	if !ok {
		return
	}
	last := len(g.active) - 1
	if i != last {
		g.active[i] = g.active[last]
		g.pos[g.active[i].OrderID] = i
	}
	g.active = g.active[:last]
	delete(g.pos, id)
}

func (g *Generator) pick() models.MboMsg {
	return g.active[g.rng.Intn(len(g.active))]
}

// Mid is the current simulated mid price.
func (g *Generator) Mid() models.Price { return g.mid }

// Active is the number of tracked resting orders.
func (g *Generator) Active() int { return len(g.active) }
