/*
Package memdproto implements the binary memcached-style framing used by
the data path (spec §4.4, §6): a fixed 24-byte header, big-endian integer
fields, and a body laid out as extras | key | value.

# Header layout

	Offset  Size  Field
	0       1     magic (request/response)
	1       1     opcode
	2       2     key length
	4       1     extras length
	5       1     datatype
	6       2     vbucket id (request) / status (response)
	8       4     total body length
	12      4     opaque
	16      8     CAS

# Opaque correlation

The opaque is caller-assigned on requests and echoed verbatim by the
server. ioservice relies on ReadFrame preserving it exactly so a multiplexed
connection can demultiplex concurrent responses.
*/
package memdproto
