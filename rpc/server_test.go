package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"matrixchain/core"
	"matrixchain/crypto"
	"matrixchain/native/matrix"
	"matrixchain/storage"
)

const testToken = "rpc-test-token"

var (
	ownerKey     = mustKey()
	memberKeys   = map[byte]*crypto.PrivateKey{1: mustKey(), 2: mustKey()}
	testOwner    = ownerKey.PubKey().Address().Raw()
	testTreasury = [20]byte{0x05}
)

func mustKey() *crypto.PrivateKey {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		panic(err)
	}
	return key
}

func testMember(n byte) [20]byte { return memberKeys[n].PubKey().Address().Raw() }

// signed stamps params with a fresh expiry and nonce and signs them with key.
func signed(t *testing.T, key *crypto.PrivateKey, method string, params map[string]interface{}) json.RawMessage {
	t.Helper()
	params["expiry"] = time.Now().Add(time.Minute).Unix()
	params["nonce"] = uuid.NewString()
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	out, err := crypto.SignRequest(key, method, raw)
	require.NoError(t, err)
	return out
}

func newTestNode(t *testing.T) *core.Node {
	t.Helper()
	node, err := core.NewNode(storage.NewMemDB(), testTreasury)
	require.NoError(t, err)
	prices := make([]*big.Int, matrix.MaxLevel)
	for i := range prices {
		prices[i] = big.NewInt(int64(1000 * (i + 1)))
	}
	_, err = node.InitGenesis(matrix.Genesis{
		Owner:        testOwner,
		FeeReceiver:  [20]byte{0x02},
		RoyaltyVault: [20]byte{0x03},
		Root:         [20]byte{0x04},
		Prices:       prices,
	}, map[[20]byte]*big.Int{
		testMember(1): big.NewInt(1_000_000),
		testMember(2): big.NewInt(1_000_000),
	})
	require.NoError(t, err)
	return node
}

func newTestServer(t *testing.T, cfg ServerConfig) (*Server, *core.Node) {
	t.Helper()
	node := newTestNode(t)
	if cfg.AuthToken == "" {
		cfg.AuthToken = testToken
	}
	srv, err := NewServer(node, cfg, nil)
	require.NoError(t, err)
	return srv, node
}

type testResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

func call(t *testing.T, handler http.Handler, token, method string, params interface{}) (int, testResponse) {
	t.Helper()
	req := map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": method}
	if params != nil {
		req["params"] = []interface{}{params}
	}
	body, err := json.Marshal(req)
	require.NoError(t, err)
	httpReq := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httpReq)
	var resp testResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec.Code, resp
}

func registerParamsFor(n byte) map[string]interface{} {
	addr := crypto.FromRaw(testMember(n)).String()
	return map[string]interface{}{"payer": addr, "account": addr, "referrerId": 0, "value": "1050"}
}

func signedRegister(t *testing.T, n byte) json.RawMessage {
	t.Helper()
	return signed(t, memberKeys[n], "matrix_register", registerParamsFor(n))
}

func TestNewServerRequiresNode(t *testing.T) {
	_, err := NewServer(nil, ServerConfig{}, nil)
	require.Error(t, err)
}

func TestHealthzAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t, ServerConfig{})
	router := srv.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
	require.NotEmpty(t, rec.Header().Get(requestIDHeader))

	call(t, router, "", "matrix_totalUsers", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "matrix_rpc_requests_total")
}

func TestMutatingMethodsRequireBearerToken(t *testing.T) {
	srv, _ := newTestServer(t, ServerConfig{})
	router := srv.Router()

	status, resp := call(t, router, "", "matrix_register", signedRegister(t, 1))
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	status, resp = call(t, router, "wrong", "matrix_register", signedRegister(t, 1))
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "invalid RPC credentials", resp.Error.Message)

	status, _ = call(t, router, "", "matrix_settings", nil)
	require.Equal(t, http.StatusOK, status, "reads stay public")
}

func TestRegisterAndReadBack(t *testing.T) {
	srv, _ := newTestServer(t, ServerConfig{})
	router := srv.Router()

	status, resp := call(t, router, testToken, "matrix_register", signedRegister(t, 1))
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)
	var receipt ReceiptResult
	require.NoError(t, json.Unmarshal(resp.Result, &receipt))
	require.Equal(t, uint64(2), receipt.UserID)
	require.Equal(t, "1050", receipt.Paid)
	require.Equal(t, "50", receipt.AdminFee)

	_, resp = call(t, router, "", "matrix_userByAccount", map[string]string{"account": crypto.FromRaw(testMember(1)).Hex()})
	var user UserResult
	require.NoError(t, json.Unmarshal(resp.Result, &user))
	require.Equal(t, uint64(2), user.ID)
	require.Equal(t, crypto.FromRaw(testMember(1)).String(), user.Account)
	require.Len(t, user.IncomeByLevel, matrix.MaxLevel)

	_, resp = call(t, router, "", "matrix_totalUsers", nil)
	require.JSONEq(t, "1", string(resp.Result))

	_, resp = call(t, router, "", "matrix_recentActivities", nil)
	var feed []ActivityResult
	require.NoError(t, json.Unmarshal(resp.Result, &feed))
	require.Len(t, feed, 1)
	require.Equal(t, "register", feed[0].Kind)

	_, resp = call(t, router, "", "matrix_balance", map[string]string{"account": crypto.FromRaw(testMember(1)).String()})
	var balance AmountResult
	require.NoError(t, json.Unmarshal(resp.Result, &balance))
	require.Equal(t, "998950", balance.Amount)
}

func TestEngineRejectionsCarryStableCode(t *testing.T) {
	srv, _ := newTestServer(t, ServerConfig{})
	router := srv.Router()

	status, _ := call(t, router, testToken, "matrix_register", signedRegister(t, 1))
	require.Equal(t, http.StatusOK, status)

	status, resp := call(t, router, testToken, "matrix_register", signedRegister(t, 1))
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeRejected, resp.Error.Code)
	data, ok := resp.Error.Data.(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "already_registered", data["code"])

	owner := crypto.FromRaw(testOwner).String()
	status, resp = call(t, router, testToken, "matrix_setSponsorFallback",
		signed(t, ownerKey, "matrix_setSponsorFallback", map[string]interface{}{"caller": owner, "mode": "bogus"}))
	require.Equal(t, http.StatusBadRequest, status)
	data = resp.Error.Data.(map[string]interface{})
	require.Equal(t, "invalid_fallback", data["code"])

	status, resp = call(t, router, testToken, "matrix_setSponsorFallback",
		signed(t, ownerKey, "matrix_setSponsorFallback", map[string]interface{}{"caller": owner, "mode": "admin"}))
	require.Equal(t, http.StatusOK, status)
	var settings SettingsResult
	require.NoError(t, json.Unmarshal(resp.Result, &settings))
	require.Equal(t, "admin", settings.SponsorFallback)
}

func TestSignedPrincipalRequired(t *testing.T) {
	srv, _ := newTestServer(t, ServerConfig{})
	router := srv.Router()
	owner := crypto.FromRaw(testOwner).String()

	// A bearer token alone does not make the owner.
	status, resp := call(t, router, testToken, "matrix_setPaused", map[string]interface{}{"caller": owner, "paused": true})
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, codeUnauthorized, resp.Error.Code)
	require.Equal(t, "signature is required", resp.Error.Message)

	// Signed by someone else while naming the owner.
	forged := signed(t, memberKeys[1], "matrix_setPaused", map[string]interface{}{"caller": owner, "paused": true})
	status, resp = call(t, router, testToken, "matrix_setPaused", forged)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "signature does not match caller", resp.Error.Message)

	_, resp = call(t, router, "", "matrix_settings", nil)
	var settings SettingsResult
	require.NoError(t, json.Unmarshal(resp.Result, &settings))
	require.False(t, settings.Paused)

	genuine := signed(t, ownerKey, "matrix_setPaused", map[string]interface{}{"caller": owner, "paused": true})
	status, resp = call(t, router, testToken, "matrix_setPaused", genuine)
	require.Equal(t, http.StatusOK, status, resp.Error)
	require.NoError(t, json.Unmarshal(resp.Result, &settings))
	require.True(t, settings.Paused)
}

func TestPayerCannotBeSpoofed(t *testing.T) {
	srv, _ := newTestServer(t, ServerConfig{})
	router := srv.Router()
	attacker := crypto.FromRaw([20]byte{0xaa}).String()

	// The attacker names member 2 as payer and signs with member 1's key.
	params := map[string]interface{}{
		"payer":      crypto.FromRaw(testMember(2)).String(),
		"account":    attacker,
		"referrerId": 0,
		"value":      "1050",
	}
	status, resp := call(t, router, testToken, "matrix_register", signed(t, memberKeys[1], "matrix_register", params))
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	_, resp = call(t, router, "", "matrix_balance", map[string]string{"account": crypto.FromRaw(testMember(2)).String()})
	var balance AmountResult
	require.NoError(t, json.Unmarshal(resp.Result, &balance))
	require.Equal(t, "1000000", balance.Amount)

	_, resp = call(t, router, "", "matrix_totalUsers", nil)
	require.JSONEq(t, "0", string(resp.Result))
}

func TestSignedRequestGuards(t *testing.T) {
	srv, _ := newTestServer(t, ServerConfig{})
	router := srv.Router()

	// Replaying the exact signed request is refused.
	request := signedRegister(t, 1)
	status, _ := call(t, router, testToken, "matrix_register", request)
	require.Equal(t, http.StatusOK, status)
	status, resp := call(t, router, testToken, "matrix_register", request)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "request already submitted", resp.Error.Message)

	// A signature for one method does not authorise another.
	params := registerParamsFor(2)
	params["parentId"] = 2
	crossed := signed(t, memberKeys[2], "matrix_register", params)
	status, resp = call(t, router, testToken, "matrix_registerWithParent", crossed)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	// Expired and far-future expiries are refused.
	fixed := time.Now()
	srv.clockNow = func() time.Time { return fixed.Add(2 * time.Minute) }
	status, resp = call(t, router, testToken, "matrix_register", signedRegister(t, 2))
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "signature expired", resp.Error.Message)

	srv.clockNow = func() time.Time { return fixed.Add(-time.Hour) }
	status, resp = call(t, router, testToken, "matrix_register", signedRegister(t, 2))
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "signature expiry too far ahead", resp.Error.Message)
}

func TestRequestValidation(t *testing.T) {
	srv, _ := newTestServer(t, ServerConfig{MaxBodyBytes: 512})
	router := srv.Router()

	status, resp := call(t, router, "", "matrix_nope", nil)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)

	status, resp = call(t, router, "", "matrix_userById", nil)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	status, resp = call(t, router, testToken, "matrix_register", map[string]interface{}{"payer": "nope", "account": "nope", "value": "1"})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "invalid payer address", resp.Error.Message)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{not json")))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid JSON payload")

	rec = httptest.NewRecorder()
	oversized := `{"method":"matrix_settings","pad":"` + strings.Repeat("x", 1024) + `"}`
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(oversized)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "exceeds 512 bytes")
}

func TestRateLimitPerClient(t *testing.T) {
	srv, _ := newTestServer(t, ServerConfig{RateLimit: 1, RateBurst: 1})
	fixed := time.Unix(1_700_000_000, 0)
	srv.clockNow = func() time.Time { return fixed }
	router := srv.Router()

	status, _ := call(t, router, "", "matrix_totalUsers", nil)
	require.Equal(t, http.StatusOK, status)
	status, resp := call(t, router, "", "matrix_totalUsers", nil)
	require.Equal(t, http.StatusTooManyRequests, status)
	require.Equal(t, codeRateLimited, resp.Error.Code)

	fixed = fixed.Add(2 * time.Second)
	status, _ = call(t, router, "", "matrix_totalUsers", nil)
	require.Equal(t, http.StatusOK, status)
}

func TestEventStreamReplaysBacklog(t *testing.T) {
	srv, node := newTestServer(t, ServerConfig{})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	_, err := node.MatrixRegister(testMember(1), testMember(1), 0, big.NewInt(1050))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws/events", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var first eventPayload
	require.NoError(t, json.Unmarshal(data, &first))
	require.Equal(t, matrix.EventTypeRegistered, first.Type)
	require.Equal(t, "2", first.Attributes["id"])

	resp, err := http.Get(ts.URL + "/ws/events?cursor=abc")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
