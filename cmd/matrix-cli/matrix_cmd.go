package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
)

type registerParams struct {
	Payer      string `json:"payer"`
	Account    string `json:"account"`
	ReferrerID uint64 `json:"referrerId"`
	ParentID   uint64 `json:"parentId,omitempty"`
	Value      string `json:"value"`
}

type upgradeParams struct {
	Payer string `json:"payer"`
	ID    uint64 `json:"id"`
	Count uint64 `json:"count"`
	Value string `json:"value"`
}

type claimParams struct {
	Caller string `json:"caller"`
	Tier   uint64 `json:"tier"`
}

type amountResult struct {
	Amount string `json:"amount"`
}

func runRegister(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		account, keyFile, value string
		referrer, parent        uint64
	)
	fs.StringVar(&account, "account", "", "account to register (defaults to the payer)")
	fs.StringVar(&keyFile, "key", "wallet.keystore", "keystore of the paying account")
	fs.Uint64Var(&referrer, "referrer", 0, "referrer user id (0 selects the root)")
	fs.Uint64Var(&parent, "parent", 0, "explicit placement parent id")
	fs.StringVar(&value, "value", "", "attached value in wei (defaults to the quoted cost)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	key, payerAddr, err := signer(keyFile)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if strings.TrimSpace(account) == "" {
		account = payerAddr
	}
	if strings.TrimSpace(value) == "" {
		if value, err = quote("matrix_registrationCost", nil); err != nil {
			fmt.Fprintf(stderr, "Error quoting registration cost: %v\n", err)
			return 1
		}
	}
	params := registerParams{Payer: payerAddr, Account: account, ReferrerID: referrer, Value: value}
	method := "matrix_register"
	if parent != 0 {
		params.ParentID = parent
		method = "matrix_registerWithParent"
	}
	return signAndPrint(method, params, key, stdout, stderr)
}

func runUpgrade(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("upgrade", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		keyFile, value string
		id, count      uint64
	)
	fs.StringVar(&keyFile, "key", "wallet.keystore", "keystore of the paying account")
	fs.Uint64Var(&id, "id", 0, "user id to upgrade")
	fs.Uint64Var(&count, "count", 1, "number of levels to buy")
	fs.StringVar(&value, "value", "", "attached value in wei (defaults to the quoted cost)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if id == 0 {
		fmt.Fprintln(stderr, "Error: --id is required")
		return 1
	}
	key, payerAddr, err := signer(keyFile)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if strings.TrimSpace(value) == "" {
		if value, err = quote("matrix_upgradeCost", map[string]uint64{"id": id, "count": count}); err != nil {
			fmt.Fprintf(stderr, "Error quoting upgrade cost: %v\n", err)
			return 1
		}
	}
	return signAndPrint("matrix_upgrade", upgradeParams{Payer: payerAddr, ID: id, Count: count, Value: value}, key, stdout, stderr)
}

func runClaim(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("claim", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		keyFile string
		tier    uint64
	)
	fs.StringVar(&keyFile, "key", "wallet.keystore", "keystore of the claiming account")
	fs.Uint64Var(&tier, "tier", 0, "royalty tier index (0-3)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	key, callerAddr, err := signer(keyFile)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return signAndPrint("matrix_claimRoyalty", claimParams{Caller: callerAddr, Tier: tier}, key, stdout, stderr)
}

func quote(method string, param interface{}) (string, error) {
	raw, err := callRPC(method, param, false)
	if err != nil {
		return "", err
	}
	var out amountResult
	if err := decodeResult(raw, &out); err != nil {
		return "", err
	}
	return out.Amount, nil
}

func runAdminCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, adminUsage())
		return 1
	}
	sub := args[0]
	fs := flag.NewFlagSet("admin "+sub, flag.ContinueOnError)
	fs.SetOutput(stderr)
	keyFile := fs.String("key", "wallet.keystore", "owner keystore")

	var (
		method string
		build  func(caller string) (interface{}, error)
	)
	switch sub {
	case "pause", "unpause":
		method = "matrix_setPaused"
		build = func(c string) (interface{}, error) {
			return map[string]interface{}{"caller": c, "paused": sub == "pause"}, nil
		}
	case "set-fee-receiver", "set-vault", "transfer-ownership":
		address := fs.String("address", "", "new address")
		method = map[string]string{
			"set-fee-receiver":   "matrix_setFeeReceiver",
			"set-vault":          "matrix_setRoyaltyVault",
			"transfer-ownership": "matrix_transferOwnership",
		}[sub]
		build = func(c string) (interface{}, error) {
			if strings.TrimSpace(*address) == "" {
				return nil, fmt.Errorf("--address is required")
			}
			return map[string]string{"caller": c, "address": *address}, nil
		}
	case "set-commission", "set-min-level":
		value := fs.Uint64("value", 0, "new value")
		method = "matrix_setSponsorCommission"
		if sub == "set-min-level" {
			method = "matrix_setSponsorMinLevel"
		}
		build = func(c string) (interface{}, error) {
			return map[string]interface{}{"caller": c, "value": *value}, nil
		}
	case "set-fallback":
		mode := fs.String("mode", "", "fallback mode: root or admin")
		method = "matrix_setSponsorFallback"
		build = func(c string) (interface{}, error) {
			return map[string]string{"caller": c, "mode": *mode}, nil
		}
	case "set-prices":
		prices := fs.String("prices", "", "comma separated wei prices for all levels")
		method = "matrix_updateLevelPrices"
		build = func(c string) (interface{}, error) {
			list := splitList(*prices)
			if len(list) == 0 {
				return nil, fmt.Errorf("--prices is required")
			}
			return map[string]interface{}{"caller": c, "prices": list}, nil
		}
	case "set-fees":
		fees := fs.String("fees", "", "comma separated admin fee percents for all levels")
		method = "matrix_setLevelFees"
		build = func(c string) (interface{}, error) {
			list := splitList(*fees)
			parsed := make([]uint64, 0, len(list))
			for _, item := range list {
				v, err := strconv.ParseUint(item, 10, 64)
				if err != nil {
					return nil, fmt.Errorf("invalid fee %q", item)
				}
				parsed = append(parsed, v)
			}
			if len(parsed) == 0 {
				return nil, fmt.Errorf("--fees is required")
			}
			return map[string]interface{}{"caller": c, "fees": parsed}, nil
		}
	case "emergency-withdraw":
		method = "matrix_emergencyWithdraw"
	case "sync-prices":
		method = "matrix_syncOraclePrices"
	default:
		fmt.Fprintf(stderr, "Unknown admin subcommand: %s\n", sub)
		fmt.Fprintln(stderr, adminUsage())
		return 1
	}
	if build == nil {
		build = func(c string) (interface{}, error) {
			return map[string]string{"caller": c}, nil
		}
	}
	if err := fs.Parse(args[1:]); err != nil {
		return 1
	}
	key, callerAddr, err := signer(*keyFile)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	params, err := build(callerAddr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return signAndPrint(method, params, key, stdout, stderr)
}

func adminUsage() string {
	buf := &bytes.Buffer{}
	fmt.Fprintln(buf, "Usage: matrix-cli admin <subcommand> [--key path] [options]")
	fmt.Fprintln(buf, "Subcommands:")
	fmt.Fprintln(buf, "  pause | unpause          Toggle the pause switch")
	fmt.Fprintln(buf, "  set-fee-receiver         --address")
	fmt.Fprintln(buf, "  set-vault                --address")
	fmt.Fprintln(buf, "  transfer-ownership       --address")
	fmt.Fprintln(buf, "  set-commission           --value (percent)")
	fmt.Fprintln(buf, "  set-min-level            --value (level)")
	fmt.Fprintln(buf, "  set-fallback             --mode root|admin")
	fmt.Fprintln(buf, "  set-prices               --prices p1,...,p13")
	fmt.Fprintln(buf, "  set-fees                 --fees f1,...,f13")
	fmt.Fprintln(buf, "  emergency-withdraw       Sweep the engine balance to the owner")
	fmt.Fprintln(buf, "  sync-prices              Refresh prices from the configured oracle")
	return buf.String()
}

func runQueryCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, queryUsage())
		return 1
	}
	sub := args[0]
	fs := flag.NewFlagSet("query "+sub, flag.ContinueOnError)
	fs.SetOutput(stderr)
	id := fs.Uint64("id", 0, "user id")
	account := fs.String("account", "", "account address")
	start := fs.Uint64("start", 0, "page offset")
	limit := fs.Uint64("limit", 20, "page size")
	layer := fs.Uint64("layer", 1, "matrix layer")
	count := fs.Uint64("count", 10, "number of entries")
	tier := fs.Uint64("tier", 0, "royalty tier index")
	if err := fs.Parse(args[1:]); err != nil {
		return 1
	}

	var (
		method string
		param  interface{}
	)
	switch sub {
	case "levels":
		method = "matrix_getLevels"
	case "settings":
		method = "matrix_settings"
	case "total-users":
		method = "matrix_totalUsers"
	case "user":
		if strings.TrimSpace(*account) != "" {
			method, param = "matrix_userByAccount", map[string]string{"account": *account}
		} else {
			method, param = "matrix_userById", map[string]uint64{"id": *id}
		}
	case "level-income":
		method, param = "matrix_levelIncome", map[string]uint64{"id": *id}
	case "direct-team":
		method, param = "matrix_directTeam", map[string]uint64{"id": *id, "start": *start, "limit": *limit}
	case "direct":
		method, param = "matrix_matrixDirect", map[string]uint64{"id": *id}
	case "layer":
		method, param = "matrix_matrixUsers", map[string]uint64{"id": *id, "layer": *layer, "start": *start, "limit": *limit}
	case "activity":
		method, param = "matrix_recentActivities", map[string]uint64{"count": *count}
	case "tier":
		method, param = "matrix_royaltyTier", map[string]uint64{"tier": *tier}
	case "eligibility":
		method, param = "matrix_isRoyaltyEligible", map[string]uint64{"id": *id}
	case "registration-cost":
		method = "matrix_registrationCost"
	case "upgrade-cost":
		method, param = "matrix_upgradeCost", map[string]uint64{"id": *id, "count": *count}
	case "balance":
		method, param = "matrix_balance", map[string]string{"account": *account}
	case "vault":
		method, param = "matrix_vaultHoldings", map[string]string{"account": *account}
	case "audit":
		method = "matrix_audit"
	default:
		fmt.Fprintf(stderr, "Unknown query subcommand: %s\n", sub)
		fmt.Fprintln(stderr, queryUsage())
		return 1
	}
	return callAndPrint(method, param, false, stdout, stderr)
}

func queryUsage() string {
	buf := &bytes.Buffer{}
	fmt.Fprintln(buf, "Usage: matrix-cli query <subcommand> [options]")
	fmt.Fprintln(buf, "Subcommands:")
	fmt.Fprintln(buf, "  levels | settings | total-users | registration-cost | audit")
	fmt.Fprintln(buf, "  user --id N | --account addr")
	fmt.Fprintln(buf, "  level-income --id N")
	fmt.Fprintln(buf, "  direct-team --id N [--start] [--limit]")
	fmt.Fprintln(buf, "  direct --id N")
	fmt.Fprintln(buf, "  layer --id N --layer L [--start] [--limit]")
	fmt.Fprintln(buf, "  activity [--count]")
	fmt.Fprintln(buf, "  tier --tier T")
	fmt.Fprintln(buf, "  eligibility --id N")
	fmt.Fprintln(buf, "  upgrade-cost --id N --count C")
	fmt.Fprintln(buf, "  balance --account addr")
	fmt.Fprintln(buf, "  vault --account addr")
	return buf.String()
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
