package snowflake

import (
	"errors"
	"strconv"
	"sync"
	"time"
)

const (
	// Epoch 2024-01-01T00:00:00Z in milliseconds
	Epoch int64 = 1704067200000

	// NodeBits + StepBits share 22 bits
	NodeBits uint8 = 10
	StepBits uint8 = 12

	nodeMask  = -1 ^ (-1 << NodeBits)
	stepMask  = -1 ^ (-1 << StepBits)
	timeShift = NodeBits + StepBits
	nodeShift = StepBits

	// OrderPrefix leads every generated order number
	OrderPrefix = "MK"
)

var ErrInvalidNode = errors.New("snowflake: node id out of range")

// Generator produces time-ordered unique ids for one node
type Generator struct {
	mu        sync.Mutex
	timestamp int64
	nodeID    int64
	step      int64
	now       func() int64
}

// New creates a generator for nodeID
func New(nodeID int64) (*Generator, error) {
	if nodeID < 0 || nodeID > nodeMask {
		return nil, ErrInvalidNode
	}
	return &Generator{
		nodeID: nodeID,
		now:    func() int64 { return time.Now().UnixMilli() },
	}, nil
}

// Next returns the next id
func (g *Generator) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	// clock moved backwards: keep issuing from the last timestamp
	if now < g.timestamp {
		now = g.timestamp
	}

	if now == g.timestamp {
		g.step = (g.step + 1) & stepMask
		if g.step == 0 {
			for now <= g.timestamp {
				now = g.now()
			}
		}
	} else {
		g.step = 0
	}
	g.timestamp = now

	return ((now - Epoch) << timeShift) | (g.nodeID << nodeShift) | g.step
}

// NextOrderNo returns a printable order number such as MK1234567890
func (g *Generator) NextOrderNo() string {
	return OrderPrefix + strconv.FormatInt(g.Next(), 10)
}

// Timestamp extracts the creation time of id
func Timestamp(id int64) time.Time {
	return time.UnixMilli((id >> timeShift) + Epoch)
}

// NodeID extracts the node id of id
func NodeID(id int64) int64 {
	return (id >> nodeShift) & nodeMask
}
