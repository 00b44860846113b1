/*
Package connpool manages the bounded set of framed-binary connections a
router keeps open to a single node (spec §4.3).

A Pool dials TCP (optionally wrapping it in TLS), brings each connection
up through HELLO feature negotiation and a SASL handshake, and hands it
out via Acquire/Release. Bring-up is grounded on the same Config-struct
constructor pattern the rest of this module uses: Pool never reaches for
ambient state, every dependency (dialer, TLS config, credentials) arrives
through connpool.Config.

# Bring-up sequence

	Dial (TCP, +TLS if configured)
	  -> HELLO (request feature set, record server-acknowledged subset)
	  -> GetErrorMap (if the server negotiated it), cached on the Connection
	  -> SASLList -> pick best mechanism (SCRAM-SHA512 > 256 > 1 > PLAIN)
	  -> SASLAuth (+ SASLStep for multi-step mechanisms)
	  -> SelectBucket (enhanced auth) or bucket-scoped SASL (legacy auth)

Any step failing destroys the connection. Initialize dials the pool's
minimum concurrently via errgroup, attempting each dial a bounded number
of times before the warm-up fails.

# Idle reclamation and liveness

A background goroutine closes connections idle past an inactivity
window down to the pool's minimum size, the same ticker/stopCh shape
used for monitor loops elsewhere in this module. Probe issues a NoOp
round trip on a pooled connection. Nothing in this module calls Probe or
clears a node's down flag, so a node quarantined by the IO service stays
down; a reconfiguration that keeps its endpoint keeps the same Node,
down flag included.
*/
package connpool
