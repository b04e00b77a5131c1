// Package coordinator implements the control plane of a ringkv cluster:
// slave membership, request routing over a consistent-hash ring, and the
// coordinator side of two-phase commit.
//
// # Overview
//
// Participants (slaves) register with the coordinator at startup. Until the
// configured number of slaves has registered, client requests are rejected.
// Once the ring is full the coordinator serves GET, PUT and DEL:
//
//	client ──► coordinator ──► primary  ─┐
//	                          successor ─┤ redundancy replicas
//	                          ...       ─┘
//
// # Ring
//
// Each slave sits on the ring at SlaveID(host, port) = Hash64("port:host").
// A key belongs to the first slave whose ID is strictly greater than
// Hash64(key), wrapping to the smallest ID. Replicas are the primary and its
// successors, up to the configured redundancy.
//
//	IDs:     10 ──── 50 ──── 90 ──┐
//	          ▲                   │
//	          └───── wrap ────────┘
//	Hash64(key) = 60 → primary 90, successor 10
//
// The ring is an llrb tree keyed by ID, guarded by the coordinator's ring
// lock.
//
// # Reads
//
// GET is answered from the coordinator's cache when possible. On a miss the
// coordinator takes the key's cache lock, asks the primary, and fails over
// to successors only when a replica cannot be reached. The first replica
// answer, value or error, is returned; values are cached.
//
// # Writes
//
// PUT and DEL run two-phase commit while holding the key's cache lock:
//
//	Phase 1: send request to each replica, collect votes
//	         unreachable or VOTE_ABORT → global ABORT
//	Barrier: Observer.OnPhaseTransition()
//	Phase 2: send COMMIT or ABORT to each replica
//	         retry until ACK; skip replicas that cannot be dialed
//	Commit:  update the coordinator cache
//	Reply:   RESP SUCCESS or the first abort reason
//
// A replica skipped in phase 2 keeps its logged vote and finishes the
// transaction after it receives the decision or is rebuilt.
//
// # Health Monitoring
//
// HealthMonitor sends INFO to every slave each interval. Three consecutive
// failures mark a slave unhealthy; a later success marks it healthy again.
// HealthMonitor also implements Observer, so replicas found unreachable
// during a transaction count as failed checks. INFO responses from the
// coordinator include each slave's status when a monitor is attached.
//
// # Thread Safety
//
// Coordinator, Ring access through the coordinator, and HealthMonitor are
// safe for concurrent use. Transactions on keys that share a cache shard
// are serialized.
package coordinator
