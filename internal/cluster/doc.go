// Package cluster defines the wire protocol spoken between ringkv clients,
// the coordinator and participant nodes.
//
// # Overview
//
// Every exchange is one request and one response over a fresh TCP
// connection. Both directions carry a single JSON-encoded Message:
//
//	client ──GETREQ/PUTREQ/DELREQ──► coordinator ──PUTREQ──► participant
//	client ◄────GETRESP/RESP──────── coordinator ◄─VOTE_*─── participant
//	                                             ──COMMIT──►
//	                                             ◄──ACK─────
//
// # Message Types
//
// Requests: GETREQ, PUTREQ, DELREQ, REGISTER, INFO
//
// Responses: GETRESP (key and value), RESP (SUCCESS or an error text),
// VOTE_COMMIT, VOTE_ABORT, ACK
//
// Decisions: COMMIT, ABORT, carrying the key of the transaction they settle
//
// REGISTER carries the participant's port in Key and host in Value.
//
// # Errors
//
// Errors travel as text in Message.Message. MessageFor maps the sentinel
// errors of this package and of the storage package onto the fixed client
// strings ("error: no key", "error: invalid request" and so on).
//
// Client.Exchange distinguishes two failure classes:
//   - ErrUnreachable: the TCP connection could not be established
//   - anything else: the peer was reached but the exchange failed
//
// The coordinator relies on that split to decide between failover and retry.
package cluster
