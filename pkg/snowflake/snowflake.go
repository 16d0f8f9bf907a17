// Package snowflake generates 64-bit, time-ordered message IDs.
//
// Layout: 41 bits of milliseconds since a custom epoch, 10 bits of node ID,
// 12 bits of per-millisecond sequence. IDs generated by one node are strictly
// increasing, which gives the message store its persistence-order invariant.
package snowflake

import (
	"errors"
	"sync"
	"time"
)

const (
	nodeBits  = 10
	stepBits  = 12
	nodeMax   = -1 ^ (-1 << nodeBits)
	stepMask  = -1 ^ (-1 << stepBits)
	timeShift = nodeBits + stepBits
	nodeShift = stepBits

	// 2023-01-01 00:00:00 UTC
	epoch int64 = 1672531200000
)

// Node generates IDs for a single gateway instance. Node IDs must be unique
// per instance (0..1023); they come from configuration.
type Node struct {
	mu   sync.Mutex
	time int64
	node int64
	step int64
}

func NewNode(node int64) (*Node, error) {
	if node < 0 || node > nodeMax {
		return nil, errors.New("snowflake: node number must be between 0 and 1023")
	}
	return &Node{node: node}, nil
}

// Generate returns the next ID. Safe for concurrent use.
func (n *Node) Generate() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := time.Now().UnixMilli()
	if now < n.time {
		// Clock moved backwards; hold the last observed time rather than
		// emitting an out-of-order ID.
		now = n.time
	}

	if n.time == now {
		n.step = (n.step + 1) & stepMask
		if n.step == 0 {
			for now <= n.time {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		n.step = 0
	}

	n.time = now

	return ((now - epoch) << timeShift) | (n.node << nodeShift) | n.step
}
