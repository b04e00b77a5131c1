// Package coordinator implements the ringkv coordinator: slave membership on a
// consistent-hash ring, GET routing with failover and two-phase commit.
// See doc.go for complete package documentation.
package coordinator

import (
	"math"
	"net"

	"github.com/petar/GoLLRB/llrb"
	"golang.org/x/exp/slices"
)

// hashSeed is the initial value of Hash64
const hashSeed int64 = 1125899906842597

// Hash64 maps a string onto the ring's 64-bit signed key space.
// It computes h = 31*h + c over the bytes of s starting from a fixed prime,
// letting the arithmetic wrap.
//
// Example:
//
//	Hash64("")  // 1125899906842597
//	Hash64("a") // 31*1125899906842597 + 97
func Hash64(s string) int64 {
	h := hashSeed
	for i := 0; i < len(s); i++ {
		h = 31*h + int64(s[i])
	}
	return h
}

// SlaveID derives a slave's ring position from "port:host"
func SlaveID(host, port string) int64 {
	return Hash64(port + ":" + host)
}

// Slave describes one registered participant and its position on the ring.
//
// Slaves are ordered by ID. Two registrations with the same host and port
// produce the same ID, which is how duplicates are detected.
type Slave struct {
	ID   int64  // Ring position, SlaveID(Host, Port)
	Host string // Hostname the participant listens on
	Port string // TCP port the participant listens on
}

// NewSlave builds a slave descriptor with its derived ID
func NewSlave(host, port string) Slave {
	return Slave{ID: SlaveID(host, port), Host: host, Port: port}
}

// Addr returns the host:port the slave serves on
func (s Slave) Addr() string {
	return net.JoinHostPort(s.Host, s.Port)
}

// Less orders slaves by ID for the llrb tree
func (s Slave) Less(than llrb.Item) bool {
	return s.ID < than.(Slave).ID
}

// Ring is the ordered set of slaves, keyed by ID.
//
// Routing follows consistent hashing:
//   - a key belongs to the slave with the smallest ID strictly greater than
//     Hash64(key), wrapping to the smallest ID
//   - replicas are that slave and its successors in ring order
//
// Thread Safety:
// Ring is not synchronized. The coordinator guards it with its ring lock.
type Ring struct {
	tree *llrb.LLRB
}

// NewRing creates an empty ring
func NewRing() *Ring {
	return &Ring{tree: llrb.New()}
}

// Add inserts s and reports whether it was new
func (r *Ring) Add(s Slave) bool {
	if r.tree.Has(s) {
		return false
	}
	r.tree.ReplaceOrInsert(s)
	return true
}

// Get returns the slave with the given ID
func (r *Ring) Get(id int64) (Slave, bool) {
	item := r.tree.Get(Slave{ID: id})
	if item == nil {
		return Slave{}, false
	}
	return item.(Slave), true
}

// Len returns the number of slaves on the ring
func (r *Ring) Len() int {
	return r.tree.Len()
}

// after returns the first slave with ID > h, wrapping to the minimum
func (r *Ring) after(h int64) (Slave, bool) {
	if r.tree.Len() == 0 {
		return Slave{}, false
	}

	var found *Slave
	if h < math.MaxInt64 {
		r.tree.AscendGreaterOrEqual(Slave{ID: h + 1}, func(item llrb.Item) bool {
			s := item.(Slave)
			found = &s
			return false
		})
	}
	if found != nil {
		return *found, true
	}
	return r.tree.Min().(Slave), true
}

// PrimaryForHash returns the slave owning hash value h
func (r *Ring) PrimaryForHash(h int64) (Slave, bool) {
	return r.after(h)
}

// Primary returns the slave owning key
//
// Example:
//
//	// ring IDs: 10, 50, 90
//	// Hash64(key) = 60 → 90
//	// Hash64(key) = 95 → 10 (wrap)
func (r *Ring) Primary(key string) (Slave, bool) {
	return r.after(Hash64(key))
}

// Successor returns the next slave after s in ring order, wrapping
func (r *Ring) Successor(s Slave) (Slave, bool) {
	return r.after(s.ID)
}

// Replicas returns up to n distinct slaves responsible for key: the primary
// followed by its successors. Fewer are returned when the ring is smaller
// than n.
func (r *Ring) Replicas(key string, n int) []Slave {
	replicas := make([]Slave, 0, n)
	s, ok := r.Primary(key)
	for ok && len(replicas) < n {
		id := s.ID
		if slices.ContainsFunc(replicas, func(x Slave) bool { return x.ID == id }) {
			break
		}
		replicas = append(replicas, s)
		s, ok = r.Successor(s)
	}
	return replicas
}

// Slaves returns every slave in ascending ID order
func (r *Ring) Slaves() []Slave {
	slaves := make([]Slave, 0, r.tree.Len())
	if r.tree.Len() == 0 {
		return slaves
	}
	r.tree.AscendGreaterOrEqual(r.tree.Min(), func(item llrb.Item) bool {
		slaves = append(slaves, item.(Slave))
		return true
	})
	return slaves
}
