package config

// Genesis holds the engine's initial configuration. Addresses are mx bech32
// or 0x hex; amounts are decimal wei strings.
type Genesis struct {
	Owner        string            `toml:"Owner"`
	FeeReceiver  string            `toml:"FeeReceiver"`
	RoyaltyVault string            `toml:"RoyaltyVault"`
	Root         string            `toml:"Root"`
	Treasury     string            `toml:"Treasury"`
	Prices       []string          `toml:"Prices"`
	Fees         []uint64          `toml:"Fees,omitempty"`
	Balances     map[string]string `toml:"Balances,omitempty"`
}

// RPC configures the JSON-RPC listener.
type RPC struct {
	// AuthTokenEnv names the environment variable holding the bearer token
	// required by mutating methods.
	AuthTokenEnv   string  `toml:"AuthTokenEnv"`
	RateLimit      float64 `toml:"RateLimit"`
	RateBurst      int     `toml:"RateBurst"`
	MaxBodyBytes   int64   `toml:"MaxBodyBytes"`
	TrustProxyHdrs bool    `toml:"TrustProxyHeaders"`
}

// Telemetry configures logging identity and OpenTelemetry exporters.
type Telemetry struct {
	Service     string  `toml:"Service"`
	Environment string  `toml:"Environment"`
	Endpoint    string  `toml:"OTLPEndpoint"`
	Headers     string  `toml:"OTLPHeaders,omitempty"`
	Insecure    bool    `toml:"Insecure"`
	Traces      bool    `toml:"Traces"`
	Metrics     bool    `toml:"Metrics"`
	// SampleRatio keeps this fraction of root spans; 0 keeps all.
	SampleRatio float64 `toml:"SampleRatio,omitempty"`
}

// Oracle configures the static USD price adapter used by price syncs.
type Oracle struct {
	LadderCents  []uint64 `toml:"LadderCents"`
	CentsPerUnit uint64   `toml:"CentsPerUnit"`
}
