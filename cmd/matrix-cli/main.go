package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"matrixchain/cmd/internal/passphrase"
	"matrixchain/crypto"
)

const (
	rpcTokenEnv     = "MATRIX_RPC_TOKEN"
	keystorePassEnv = "MATRIX_KEYSTORE_PASS"

	// signatureTTL is how long a signed request stays valid on the node.
	signatureTTL = 5 * time.Minute
)

var rpcEndpoint = defaultRPCEndpoint() // Defaults to localhost, can be overridden via RPC_URL or --rpc flag

var (
	rpcToken = passphrase.NewSource(rpcTokenEnv, "RPC bearer token").Get
	keyPass  = passphrase.NewSource(keystorePassEnv, "keystore passphrase").Get

	httpClient = &http.Client{
		Timeout:   30 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	clockNow = time.Now
)

func main() {
	args, err := applyGlobalFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(run(args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stdout)
		return 0
	}
	switch args[0] {
	case "keygen":
		return runKeygen(args[1:], stdout, stderr)
	case "address":
		return runAddress(args[1:], stdout, stderr)
	case "register":
		return runRegister(args[1:], stdout, stderr)
	case "upgrade":
		return runUpgrade(args[1:], stdout, stderr)
	case "claim":
		return runClaim(args[1:], stdout, stderr)
	case "admin":
		return runAdminCommand(args[1:], stdout, stderr)
	case "query":
		return runQueryCommand(args[1:], stdout, stderr)
	case "call":
		return runRawCall(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		printUsage(stderr)
		return 1
	}
}

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("RPC_URL")); v != "" {
		return v
	}
	return "http://localhost:8545"
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--rpc" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for --rpc")
			}
			rpcEndpoint = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--rpc=") {
			rpcEndpoint = strings.TrimPrefix(arg, "--rpc=")
			continue
		}
		out = append(out, arg)
	}
	return out, nil
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *rpcError) Error() string {
	var rejection struct {
		Code string `json:"code"`
	}
	if len(e.Data) > 0 && json.Unmarshal(e.Data, &rejection) == nil && rejection.Code != "" {
		return fmt.Sprintf("rpc error %d: %s (%s)", e.Code, e.Message, rejection.Code)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func doRPCRequest(payload []byte, requireAuth bool) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if requireAuth {
		token, err := rpcToken()
		if err != nil {
			return nil, fmt.Errorf("privileged RPC call requires %s: %w", rpcTokenEnv, err)
		}
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", rpcEndpoint, err)
	}
	return resp, nil
}

// callRPC sends method with a single parameter object and returns the raw
// result.
func callRPC(method string, param interface{}, requireAuth bool) (json.RawMessage, error) {
	payload := map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": method}
	if param != nil {
		payload["params"] = []interface{}{param}
	} else {
		payload["params"] = []interface{}{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	resp, err := doRPCRequest(body, requireAuth)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}

func decodeResult(raw json.RawMessage, out interface{}) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

func printJSON(w io.Writer, raw json.RawMessage) {
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		fmt.Fprintln(w, string(raw))
		return
	}
	fmt.Fprintln(w, out.String())
}

// callAndPrint is the common tail of every RPC-backed subcommand.
func callAndPrint(method string, param interface{}, requireAuth bool, stdout, stderr io.Writer) int {
	result, err := callRPC(method, param, requireAuth)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	printJSON(stdout, result)
	return 0
}

// signParams stamps param with an expiry and a nonce and signs it for method.
func signParams(method string, param interface{}, key *crypto.PrivateKey) (json.RawMessage, error) {
	raw, err := json.Marshal(param)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var fields map[string]interface{}
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}
	fields["expiry"] = clockNow().Add(signatureTTL).Unix()
	fields["nonce"] = uuid.NewString()
	stamped, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	signed, err := crypto.SignRequest(key, method, stamped)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(signed), nil
}

// signAndPrint signs param with key and sends it as a privileged call.
func signAndPrint(method string, param interface{}, key *crypto.PrivateKey, stdout, stderr io.Writer) int {
	signed, err := signParams(method, param, key)
	if err != nil {
		fmt.Fprintf(stderr, "Error signing request: %v\n", err)
		return 1
	}
	return callAndPrint(method, signed, true, stdout, stderr)
}

func runRawCall(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 || len(args) > 2 {
		fmt.Fprintln(stderr, "Usage: matrix-cli call <method> [json-params]")
		return 1
	}
	var param interface{}
	if len(args) == 2 {
		if err := json.Unmarshal([]byte(args[1]), &param); err != nil {
			fmt.Fprintf(stderr, "Error: invalid JSON params: %v\n", err)
			return 1
		}
	}
	return callAndPrint(args[0], param, methodRequiresAuth(args[0]), stdout, stderr)
}

// methodRequiresAuth reports whether the server guards method with the bearer
// token. Reads never need it.
func methodRequiresAuth(method string) bool {
	switch method {
	case "matrix_register", "matrix_registerWithParent", "matrix_upgrade", "matrix_claimRoyalty",
		"matrix_setPaused", "matrix_setFeeReceiver", "matrix_setRoyaltyVault",
		"matrix_setSponsorCommission", "matrix_setSponsorMinLevel", "matrix_setSponsorFallback",
		"matrix_updateLevelPrices", "matrix_setLevelFees", "matrix_transferOwnership",
		"matrix_emergencyWithdraw", "matrix_syncOraclePrices":
		return true
	default:
		return false
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: matrix-cli [--rpc URL] <command> [arguments]")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Mutating commands send the bearer token from %s (prompted when unset)\n", rpcTokenEnv)
	fmt.Fprintln(w, "and are signed with the -key keystore, whose address acts as payer or caller.")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  keygen [-out path]            - Generates a key into an encrypted keystore")
	fmt.Fprintln(w, "  address -key path             - Prints the address held by a keystore")
	fmt.Fprintln(w, "  register                      - Registers an account under a referrer")
	fmt.Fprintln(w, "  upgrade                       - Buys the next levels for a user")
	fmt.Fprintln(w, "  claim                         - Claims a royalty tier share")
	fmt.Fprintln(w, "  admin <subcommand>            - Owner-only settings")
	fmt.Fprintln(w, "  query <subcommand>            - Read-only views")
	fmt.Fprintln(w, "  call <method> [json-params]   - Sends a raw JSON-RPC request")
}
