package abi

import (
	"fmt"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // the ledger's key checksum is ripemd160
)

const (
	keyTypeK1 = 0
	keyTypeR1 = 1

	publicKeyDataSize = 33
	signatureDataSize = 65
)

var keyTypeSuffix = map[byte]string{
	keyTypeK1: "K1",
	keyTypeR1: "R1",
}

// encodeKey renders key material in the ledger's "<PREFIX>_<TYPE>_<base58>" form,
// where the base58 payload carries a 4 byte ripemd160 checksum of the data and
// type suffix.
func encodeKey(prefix, suffix string, data []byte) string {
	h := ripemd160.New()
	h.Write(data)
	h.Write([]byte(suffix))
	digest := h.Sum(nil)

	payload := make([]byte, 0, len(data)+4)
	payload = append(payload, data...)
	payload = append(payload, digest[:4]...)
	return prefix + "_" + suffix + "_" + base58.Encode(payload)
}

func readKeyMaterial(r *reader, prefix string, size int) (any, error) {
	keyType, err := r.byte()
	if err != nil {
		return nil, err
	}
	suffix, ok := keyTypeSuffix[keyType]
	if !ok {
		// WebAuthn keys carry variable length data.
		return nil, fmt.Errorf("unsupported %s key type %d", prefix, keyType)
	}
	data, err := r.read(size)
	if err != nil {
		return nil, err
	}
	return encodeKey(prefix, suffix, data), nil
}

func publicKey(r *reader) (any, error) {
	return readKeyMaterial(r, "PUB", publicKeyDataSize)
}

func signature(r *reader) (any, error) {
	return readKeyMaterial(r, "SIG", signatureDataSize)
}
