package domain

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrRecvTimeout is returned when a rank waits longer than the network
// watchdog for a message. It marks a wedged topology, not a transient
// condition; callers treat it as fatal for the running cycle.
var ErrRecvTimeout = errors.New("domain: no message within watchdog window")

// MessageKind tags what a network message carries.
type MessageKind uint8

const (
	// KindSlab is a ghost-layer slab of field data.
	KindSlab MessageKind = iota
	// KindReduce carries per-particle partial sums towards the reduce root.
	KindReduce
	// KindResult broadcasts reduced totals from the root.
	KindResult
	// KindStatus carries a rank's phase status for collective error
	// agreement.
	KindStatus
)

// Message is the unit of cross-rank communication. Payload fields are used
// according to Kind; unused ones stay nil.
type Message struct {
	Kind     MessageKind
	Src      int // sending rank, set by Send
	DstBlock int // receiving block id for slab messages
	Axis     int // exchange axis for slab messages
	Dir      int // face direction on the sending block, +1 or -1

	Floats []float64
	Bytes  []byte
	Ints   []int64
}

// Network connects a fixed set of rank goroutines through buffered inboxes.
// Inbox capacity is sized so that every rank can post all sends of one
// exchange or reduce phase without blocking; phases are separated by
// Barrier, so capacity never accumulates across phases.
type Network struct {
	size     int
	inbox    []chan Message
	barrier  *Barrier
	watchdog time.Duration
}

// DefaultWatchdog bounds how long a rank waits for a single message.
const DefaultWatchdog = 10 * time.Second

// NewNetwork creates a network for the given number of ranks. blocks is the
// total block count of the decomposition and sizes the inbox buffers.
func NewNetwork(ranks, blocks int) *Network {
	if ranks < 1 {
		panic(fmt.Sprintf("domain: invalid rank count %d", ranks))
	}
	capacity := 2*blocks + ranks + 8
	n := &Network{
		size:     ranks,
		inbox:    make([]chan Message, ranks),
		barrier:  NewBarrier(ranks),
		watchdog: DefaultWatchdog,
	}
	for i := range n.inbox {
		n.inbox[i] = make(chan Message, capacity)
	}
	return n
}

// SetWatchdog overrides the receive watchdog, mainly for tests.
func (n *Network) SetWatchdog(d time.Duration) { n.watchdog = d }

// Size returns the number of ranks.
func (n *Network) Size() int { return n.size }

// Rank returns the communicator handle for one rank goroutine.
func (n *Network) Rank(r int) *Comm {
	if r < 0 || r >= n.size {
		panic(fmt.Sprintf("domain: rank %d out of range [0,%d)", r, n.size))
	}
	return &Comm{net: n, rank: r}
}

// Comm is one rank's endpoint of the network.
type Comm struct {
	net  *Network
	rank int
}

// Rank returns the owning rank id.
func (c *Comm) Rank() int { return c.rank }

// Size returns the number of ranks in the network.
func (c *Comm) Size() int { return c.net.size }

// Send delivers a message to the destination rank's inbox. Sending to the
// own rank is allowed and used by the collectives to keep code paths uniform.
func (c *Comm) Send(dst int, m Message) {
	m.Src = c.rank
	c.net.inbox[dst] <- m
}

// Recv returns the next message for this rank, or ErrRecvTimeout once the
// watchdog window passes without one.
func (c *Comm) Recv() (Message, error) {
	timer := time.NewTimer(c.net.watchdog)
	defer timer.Stop()
	select {
	case m := <-c.net.inbox[c.rank]:
		return m, nil
	case <-timer.C:
		return Message{}, fmt.Errorf("rank %d: %w", c.rank, ErrRecvTimeout)
	}
}

// Barrier blocks until every rank of the network reached it.
func (c *Comm) Barrier() { c.net.barrier.Wait() }

// Barrier is a reusable rendezvous for a fixed number of goroutines.
type Barrier struct {
	mu      sync.Mutex
	cond    *sync.Cond
	parties int
	waiting int
	gen     uint64
}

// NewBarrier creates a barrier for the given number of parties.
func NewBarrier(parties int) *Barrier {
	if parties < 1 {
		panic(fmt.Sprintf("domain: invalid barrier size %d", parties))
	}
	b := &Barrier{parties: parties}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Wait blocks until all parties arrived, then releases them together. The
// barrier is cyclic; generations keep late wakers from racing the next round.
func (b *Barrier) Wait() {
	b.mu.Lock()
	defer b.mu.Unlock()
	gen := b.gen
	b.waiting++
	if b.waiting == b.parties {
		b.waiting = 0
		b.gen++
		b.cond.Broadcast()
		return
	}
	for gen == b.gen {
		b.cond.Wait()
	}
}
