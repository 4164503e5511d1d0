package rpc

import (
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	"matrixchain/crypto"
	"matrixchain/observability/logging"
)

// maxSignatureTTL bounds how far ahead a signed request may set its expiry.
const maxSignatureTTL = 10 * time.Minute

// signedFields are the replay guards every signed request carries next to
// its principal.
type signedFields struct {
	Expiry    int64  `json:"expiry"`
	Nonce     string `json:"nonce"`
	Signature string `json:"signature"`
}

func unauthorized(message string, err error) *RPCError {
	rpcErr := &RPCError{Code: codeUnauthorized, Message: message}
	if err != nil {
		rpcErr.Data = err.Error()
	}
	return rpcErr
}

// verifySigner checks that the account named by principalField signed the
// request for method, that the signature has not expired and that it has not
// been used before.
func (s *Server) verifySigner(method string, params []json.RawMessage, principalField string) *RPCError {
	if len(params) != 1 {
		return invalidParams("exactly one parameter object expected", nil)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(params[0], &fields); err != nil {
		return invalidParams("invalid parameter object", err)
	}
	var claimed string
	if raw, ok := fields[principalField]; ok {
		if err := json.Unmarshal(raw, &claimed); err != nil {
			return invalidParams("invalid "+principalField+" address", err)
		}
	}
	principal, rpcErr := parseAddress(principalField, claimed)
	if rpcErr != nil {
		return rpcErr
	}
	var guard signedFields
	if err := json.Unmarshal(params[0], &guard); err != nil {
		return invalidParams("invalid parameter object", err)
	}
	if guard.Signature == "" {
		return unauthorized("signature is required", nil)
	}
	if guard.Expiry <= 0 {
		return unauthorized("expiry is required", nil)
	}
	now := s.clockNow()
	expiry := time.Unix(guard.Expiry, 0)
	if !expiry.After(now) {
		return unauthorized("signature expired", nil)
	}
	if expiry.Sub(now) > maxSignatureTTL {
		return unauthorized("signature expiry too far ahead", nil)
	}

	signer, err := crypto.RecoverRequestSigner(method, params[0])
	if err != nil {
		return unauthorized("invalid signature", err)
	}
	if signer != principal {
		s.logger.Warn("request signer mismatch",
			slog.String("method", method),
			slog.String("signer", crypto.FromRaw(signer).String()),
			slog.String("account", crypto.FromRaw(principal).String()),
			logging.MaskField("signature", guard.Signature))
		return unauthorized("signature does not match "+principalField, nil)
	}
	digest, err := crypto.RequestDigest(method, params[0])
	if err != nil {
		return unauthorized("invalid signature", err)
	}
	if !s.markSignature(hex.EncodeToString(digest), expiry, now) {
		return unauthorized("request already submitted", nil)
	}
	return nil
}

// markSignature records a signed digest until its expiry and reports false
// when it was already seen.
func (s *Server) markSignature(digest string, expiry, now time.Time) bool {
	s.replayMu.Lock()
	defer s.replayMu.Unlock()
	for key, until := range s.seen {
		if !until.After(now) {
			delete(s.seen, key)
		}
	}
	if _, ok := s.seen[digest]; ok {
		return false
	}
	s.seen[digest] = expiry
	return true
}
