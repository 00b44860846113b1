package memdproto

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/latticekv/cbcore/pkg/types"
)

// HeaderLen is the fixed size of every request and response header.
const HeaderLen = 24

// maxBodyLen guards against a corrupt or hostile length field forcing an
// unbounded allocation; no real document or topology payload approaches
// this.
const maxBodyLen = 64 * 1024 * 1024

// EncodeRequest serializes f as a request frame. f.VBucket is the
// partition id; the caller must have already stamped it.
func EncodeRequest(f *types.OperationFrame) []byte {
	return encode(byte(MagicRequest), f)
}

// EncodeResponse serializes f as a response frame. f.VBucket carries the
// status code in this direction.
func EncodeResponse(f *types.OperationFrame) []byte {
	return encode(byte(MagicResponse), f)
}

func encode(magic byte, f *types.OperationFrame) []byte {
	bodyLen := len(f.Extras) + len(f.Key) + len(f.Value)
	buf := make([]byte, HeaderLen+bodyLen)

	buf[0] = magic
	buf[1] = f.Opcode
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(f.Key)))
	buf[4] = byte(len(f.Extras))
	buf[5] = f.Datatype
	binary.BigEndian.PutUint16(buf[6:8], f.VBucket)
	binary.BigEndian.PutUint32(buf[8:12], uint32(bodyLen))
	binary.BigEndian.PutUint32(buf[12:16], f.Opaque)
	binary.BigEndian.PutUint64(buf[16:24], f.CAS)

	off := HeaderLen
	off += copy(buf[off:], f.Extras)
	off += copy(buf[off:], f.Key)
	copy(buf[off:], f.Value)

	return buf
}

// ReadFrame reads one complete frame (header + body) from r.
func ReadFrame(r io.Reader) (*types.OperationFrame, error) {
	var hdr [HeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	magic := hdr[0]
	if magic != byte(MagicRequest) && magic != byte(MagicResponse) {
		return nil, fmt.Errorf("invalid magic byte 0x%02x", magic)
	}

	keyLen := binary.BigEndian.Uint16(hdr[2:4])
	extrasLen := hdr[4]
	bodyLen := binary.BigEndian.Uint32(hdr[8:12])
	if bodyLen > maxBodyLen {
		return nil, fmt.Errorf("body length %d exceeds maximum %d", bodyLen, maxBodyLen)
	}
	if uint32(keyLen)+uint32(extrasLen) > bodyLen {
		return nil, fmt.Errorf("key+extras length exceeds total body length")
	}

	body := make([]byte, bodyLen)
	if bodyLen > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
	}

	f := &types.OperationFrame{
		Magic:    magic,
		Opcode:   hdr[1],
		Datatype: hdr[5],
		VBucket:  binary.BigEndian.Uint16(hdr[6:8]),
		Opaque:   binary.BigEndian.Uint32(hdr[12:16]),
		CAS:      binary.BigEndian.Uint64(hdr[16:24]),
	}

	valLen := bodyLen - uint32(keyLen) - uint32(extrasLen)
	f.Extras = body[:extrasLen]
	f.Key = body[extrasLen : uint32(extrasLen)+uint32(keyLen)]
	f.Value = body[uint32(extrasLen)+uint32(keyLen) : uint32(extrasLen)+uint32(keyLen)+valLen]

	return f, nil
}
