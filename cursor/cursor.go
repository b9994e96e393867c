// Package cursor implements the opaque pagination cursor Paginate hands
// back on each edge: base64 of a small JSON object carrying the edge's key
// attributes, optionally AES-256-CTR encrypted under a fixed synthetic IV
// so the same item always yields the same cursor across processes and
// restarts.
package cursor

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/json"

	tserrors "github.com/ticketbro/tablestore/errors"
)

// Keys is the payload a cursor encodes: the primary key pair, plus the
// queried index's pair when paginating a GSI other than the implicit
// primary index.
type Keys struct {
	PK, SK     string
	GSIPK      string `json:"GSIPK,omitempty"`
	GSISK      string `json:"GSISK,omitempty"`
}

// ivSize and keySize fix AES-256-CTR's parameters; EncryptionKey must be
// exactly keySize bytes.
const (
	ivSize  = 16
	keySize = 32
)

// syntheticIV is the fixed, non-secret initialization vector. Cursors are
// opaque, not confidential: the IV's purpose is determinism (the same item
// always encodes to the same cursor across processes and restarts), not
// hiding the existence of a cursor.
var syntheticIV = [ivSize]byte{
	0x74, 0x61, 0x62, 0x6c, 0x65, 0x73, 0x74, 0x6f,
	0x72, 0x65, 0x2d, 0x63, 0x75, 0x72, 0x73, 0x6f,
}

// Encode renders keys as an opaque cursor string. When key is non-nil it
// must be exactly keySize (32) bytes; the JSON payload is then AES-256-CTR
// encrypted under the fixed synthetic IV before base64 encoding.
func Encode(keys Keys, key []byte) (string, error) {
	payload, err := json.Marshal(keys)
	if err != nil {
		return "", tserrors.NewPagination("couldn't encode cursor", err)
	}

	if key != nil {
		payload, err = encrypt(payload, key)
		if err != nil {
			return "", tserrors.NewPagination("couldn't encrypt cursor", err)
		}
	}

	return base64.StdEncoding.EncodeToString(payload), nil
}

// Decode is Encode's inverse. A malformed cursor, a key mismatch, or
// corrupt JSON all surface as PaginationError("Couldn't decode cursor").
func Decode(cursor string, key []byte) (Keys, error) {
	var zero Keys

	payload, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return zero, tserrors.NewPagination("Couldn't decode cursor", err)
	}

	if key != nil {
		payload, err = decrypt(payload, key)
		if err != nil {
			return zero, tserrors.NewPagination("Couldn't decode cursor", err)
		}
	}

	var keys Keys
	if err := json.Unmarshal(payload, &keys); err != nil {
		return zero, tserrors.NewPagination("Couldn't decode cursor", err)
	}
	return keys, nil
}

func encrypt(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	stream := cipher.NewCTR(block, syntheticIV[:])
	out := make([]byte, len(plaintext))
	stream.XORKeyStream(out, plaintext)
	return out, nil
}

func decrypt(ciphertext, key []byte) ([]byte, error) {
	// AES-CTR is its own inverse: decrypting re-derives the same keystream
	// from the same IV and XORs it back off.
	return encrypt(ciphertext, key)
}
