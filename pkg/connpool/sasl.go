package connpool

import (
	"fmt"
	"strings"

	"github.com/latticekv/cbcore/pkg/cberr"
	"github.com/latticekv/cbcore/pkg/memdproto"
	"github.com/latticekv/cbcore/pkg/types"
)

// Mechanism is a SASL mechanism name as advertised by SASLList.
type Mechanism string

const (
	MechanismScramSHA512 Mechanism = "SCRAM-SHA512"
	MechanismScramSHA256 Mechanism = "SCRAM-SHA256"
	MechanismScramSHA1   Mechanism = "SCRAM-SHA1"
	MechanismPlain       Mechanism = "PLAIN"
)

// preferenceOrder is spec §4.3's mechanism preference: strongest first.
var preferenceOrder = []Mechanism{
	MechanismScramSHA512,
	MechanismScramSHA256,
	MechanismScramSHA1,
	MechanismPlain,
}

func listMechanisms(c *Connection) ([]Mechanism, error) {
	req := noOpFrame(c.nextOpaque())
	req.Opcode = byte(memdproto.OpSASLList)
	if err := c.Write(memdproto.EncodeRequest(req)); err != nil {
		return nil, fmt.Errorf("connpool: sasllist write: %w", err)
	}
	resp, err := memdproto.ReadFrame(c.conn)
	if err != nil {
		return nil, fmt.Errorf("connpool: sasllist read: %w", err)
	}
	fields := strings.Fields(string(resp.Value))
	mechs := make([]Mechanism, len(fields))
	for i, f := range fields {
		mechs[i] = Mechanism(f)
	}
	return mechs, nil
}

// selectMechanism picks the strongest advertised mechanism, honoring
// ForceSaslPlain. Falls back to PLAIN if nothing else matches, since the
// caller cannot authenticate at all otherwise.
func selectMechanism(available []Mechanism, forcePlain bool) Mechanism {
	if forcePlain {
		return MechanismPlain
	}
	have := make(map[Mechanism]bool, len(available))
	for _, m := range available {
		have[m] = true
	}
	for _, pref := range preferenceOrder {
		if have[pref] {
			return pref
		}
	}
	return MechanismPlain
}

func authenticate(c *Connection, mech Mechanism, username, password string) error {
	switch mech {
	case MechanismPlain:
		return authenticatePlain(c, username, password)
	case MechanismScramSHA512, MechanismScramSHA256, MechanismScramSHA1:
		return authenticateScram(c, mech, username, password)
	default:
		return fmt.Errorf("%w: unsupported mechanism %q", cberr.ErrSASLRejected, mech)
	}
}

func authenticatePlain(c *Connection, username, password string) error {
	msg := "\x00" + username + "\x00" + password
	req := &types.OperationFrame{
		Opcode: byte(memdproto.OpSASLAuth),
		Opaque: c.nextOpaque(),
		Key:    []byte(MechanismPlain),
		Value:  []byte(msg),
	}
	if err := c.Write(memdproto.EncodeRequest(req)); err != nil {
		return fmt.Errorf("connpool: sasl plain write: %w", err)
	}
	resp, err := memdproto.ReadFrame(c.conn)
	if err != nil {
		return fmt.Errorf("connpool: sasl plain read: %w", err)
	}
	if memdproto.Classify(memdproto.WireStatus(resp.VBucket)) != types.StatusSuccess {
		return fmt.Errorf("%w: plain auth rejected", cberr.ErrSASLRejected)
	}
	return nil
}
