package crypto

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureField is the parameter key carrying a request signature.
const SignatureField = "signature"

var ErrInvalidSignature = errors.New("crypto: invalid request signature")

// RequestDigest hashes method and a JSON parameter object. The signature
// field is dropped and keys are re-encoded in sorted order so whitespace and
// key order do not change the digest.
func RequestDigest(method string, params []byte) ([]byte, error) {
	fields, err := decodeObject(params)
	if err != nil {
		return nil, err
	}
	delete(fields, SignatureField)
	canonical, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("crypto: encode request: %w", err)
	}
	return crypto.Keccak256([]byte("matrix_request|"+method+"|"), canonical), nil
}

// SignRequest returns params with a signature over method and params set.
func SignRequest(key *PrivateKey, method string, params []byte) ([]byte, error) {
	if key == nil || key.PrivateKey == nil {
		return nil, errors.New("crypto: nil private key")
	}
	digest, err := RequestDigest(method, params)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(digest, key.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: sign request: %w", err)
	}
	fields, err := decodeObject(params)
	if err != nil {
		return nil, err
	}
	fields[SignatureField] = "0x" + hex.EncodeToString(sig)
	return json.Marshal(fields)
}

// RecoverRequestSigner returns the account whose key signed params for
// method.
func RecoverRequestSigner(method string, params []byte) ([20]byte, error) {
	fields, err := decodeObject(params)
	if err != nil {
		return [20]byte{}, err
	}
	encoded, _ := fields[SignatureField].(string)
	if strings.TrimSpace(encoded) == "" {
		return [20]byte{}, fmt.Errorf("%w: signature is required", ErrInvalidSignature)
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(encoded), "0x"))
	if err != nil {
		return [20]byte{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if len(sig) != crypto.SignatureLength {
		return [20]byte{}, fmt.Errorf("%w: signature must be %d bytes", ErrInvalidSignature, crypto.SignatureLength)
	}
	digest, err := RequestDigest(method, params)
	if err != nil {
		return [20]byte{}, err
	}
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return [20]byte{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return [20]byte(crypto.PubkeyToAddress(*pub)), nil
}

func decodeObject(params []byte) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(params))
	dec.UseNumber()
	var fields map[string]interface{}
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("%w: parameters must be a JSON object: %v", ErrInvalidSignature, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: parameters must be a JSON object", ErrInvalidSignature)
	}
	return fields, nil
}
