package connpool

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"hash"
	"strconv"
	"strings"

	"github.com/latticekv/cbcore/pkg/cberr"
	"github.com/latticekv/cbcore/pkg/memdproto"
	"github.com/latticekv/cbcore/pkg/types"
	"golang.org/x/crypto/pbkdf2"
)

// authenticateScram runs the RFC 5802 SCRAM exchange: a SASLAuth carrying
// the client-first-message, a SASLStep carrying the client-final-message
// once the server returns its challenge, and a final verification of the
// server's signature.
func authenticateScram(c *Connection, mech Mechanism, username, password string) error {
	h := hashFor(mech)

	nonce, err := clientNonce()
	if err != nil {
		return fmt.Errorf("connpool: scram nonce: %w", err)
	}
	clientFirstBare := "n=" + escapeUser(username) + ",r=" + nonce
	clientFirst := "n,," + clientFirstBare

	req := &types.OperationFrame{
		Opcode: byte(memdproto.OpSASLAuth),
		Opaque: c.nextOpaque(),
		Key:    []byte(mech),
		Value:  []byte(clientFirst),
	}
	if err := c.Write(memdproto.EncodeRequest(req)); err != nil {
		return fmt.Errorf("connpool: scram auth write: %w", err)
	}
	resp, err := memdproto.ReadFrame(c.conn)
	if err != nil {
		return fmt.Errorf("connpool: scram auth read: %w", err)
	}
	if memdproto.WireStatus(resp.VBucket) != memdproto.WireAuthContinue {
		return fmt.Errorf("%w: unexpected scram response", cberr.ErrSASLRejected)
	}

	serverFirst := string(resp.Value)
	salt, iterCount, serverNonce, err := parseServerFirst(serverFirst)
	if err != nil {
		return fmt.Errorf("%w: %v", cberr.ErrSASLRejected, err)
	}
	if !strings.HasPrefix(serverNonce, nonce) {
		return fmt.Errorf("%w: server nonce does not extend client nonce", cberr.ErrSASLRejected)
	}

	saltedPassword := pbkdf2.Key([]byte(password), salt, iterCount, h().Size(), h)
	clientKey := hmacSum(h, saltedPassword, "Client Key")
	storedKey := hashSum(h, clientKey)
	channelBinding := "c=" + base64.StdEncoding.EncodeToString([]byte("n,,"))
	clientFinalWithoutProof := channelBinding + ",r=" + serverNonce
	authMessage := clientFirstBare + "," + serverFirst + "," + clientFinalWithoutProof

	clientSignature := hmacSum(h, storedKey, authMessage)
	clientProof := xorBytes(clientKey, clientSignature)

	clientFinal := clientFinalWithoutProof + ",p=" + base64.StdEncoding.EncodeToString(clientProof)

	stepReq := &types.OperationFrame{
		Opcode: byte(memdproto.OpSASLStep),
		Opaque: c.nextOpaque(),
		Key:    []byte(mech),
		Value:  []byte(clientFinal),
	}
	if err := c.Write(memdproto.EncodeRequest(stepReq)); err != nil {
		return fmt.Errorf("connpool: scram step write: %w", err)
	}
	stepResp, err := memdproto.ReadFrame(c.conn)
	if err != nil {
		return fmt.Errorf("connpool: scram step read: %w", err)
	}
	if memdproto.Classify(memdproto.WireStatus(stepResp.VBucket)) != types.StatusSuccess {
		return fmt.Errorf("%w: scram step rejected", cberr.ErrSASLRejected)
	}

	serverKey := hmacSum(h, saltedPassword, "Server Key")
	expectedSig := hmacSum(h, serverKey, authMessage)
	gotSig, err := parseServerFinal(string(stepResp.Value))
	if err != nil {
		return fmt.Errorf("%w: %v", cberr.ErrSASLRejected, err)
	}
	if !hmac.Equal(expectedSig, gotSig) {
		return fmt.Errorf("%w: server signature mismatch", cberr.ErrSASLRejected)
	}
	return nil
}

func hashFor(mech Mechanism) func() hash.Hash {
	switch mech {
	case MechanismScramSHA512:
		return sha512.New
	case MechanismScramSHA256:
		return sha256.New
	default:
		return sha1.New
	}
}

func clientNonce() (string, error) {
	buf := make([]byte, 18)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawStdEncoding.EncodeToString(buf), nil
}

func escapeUser(u string) string {
	u = strings.ReplaceAll(u, "=", "=3D")
	return strings.ReplaceAll(u, ",", "=2C")
}

func parseServerFirst(msg string) (salt []byte, iterCount int, nonce string, err error) {
	parts := strings.Split(msg, ",")
	if len(parts) < 3 {
		return nil, 0, "", fmt.Errorf("malformed server-first-message %q", msg)
	}
	for _, p := range parts {
		switch {
		case strings.HasPrefix(p, "r="):
			nonce = strings.TrimPrefix(p, "r=")
		case strings.HasPrefix(p, "s="):
			salt, err = base64.StdEncoding.DecodeString(strings.TrimPrefix(p, "s="))
			if err != nil {
				return nil, 0, "", err
			}
		case strings.HasPrefix(p, "i="):
			iterCount, err = strconv.Atoi(strings.TrimPrefix(p, "i="))
			if err != nil {
				return nil, 0, "", err
			}
		}
	}
	if nonce == "" || salt == nil || iterCount <= 0 {
		return nil, 0, "", fmt.Errorf("incomplete server-first-message %q", msg)
	}
	return salt, iterCount, nonce, nil
}

func parseServerFinal(msg string) ([]byte, error) {
	for _, p := range strings.Split(msg, ",") {
		if strings.HasPrefix(p, "v=") {
			return base64.StdEncoding.DecodeString(strings.TrimPrefix(p, "v="))
		}
	}
	return nil, fmt.Errorf("missing server signature in %q", msg)
}

func hmacSum(h func() hash.Hash, key []byte, data string) []byte {
	mac := hmac.New(h, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}

func hashSum(h func() hash.Hash, data []byte) []byte {
	sum := h()
	sum.Write(data)
	return sum.Sum(nil)
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}
