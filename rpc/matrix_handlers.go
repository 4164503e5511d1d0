package rpc

import (
	"context"
	"encoding/json"
	"math/big"

	"matrixchain/native/matrix"
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

type claimRoyaltyParams struct {
	Caller string `json:"caller"`
	Tier   uint64 `json:"tier"`
}

type callerParams struct {
	Caller string `json:"caller"`
}

type setPausedParams struct {
	Caller string `json:"caller"`
	Paused bool   `json:"paused"`
}

type addressParams struct {
	Caller  string `json:"caller"`
	Address string `json:"address"`
}

type percentParams struct {
	Caller string `json:"caller"`
	Value  uint64 `json:"value"`
}

type fallbackParams struct {
	Caller string `json:"caller"`
	Mode   string `json:"mode"`
}

type pricesParams struct {
	Caller string   `json:"caller"`
	Prices []string `json:"prices"`
}

type feesParams struct {
	Caller string   `json:"caller"`
	Fees   []uint64 `json:"fees"`
}

type idParams struct {
	ID uint64 `json:"id"`
}

type accountParams struct {
	Account string `json:"account"`
}

type pageParams struct {
	ID    uint64 `json:"id"`
	Layer uint64 `json:"layer,omitempty"`
	Start uint64 `json:"start"`
	Limit uint64 `json:"limit"`
}

type countParams struct {
	ID    uint64 `json:"id,omitempty"`
	Count uint64 `json:"count"`
}

type tierParams struct {
	Tier uint64 `json:"tier"`
}

type ReceiptResult struct {
	UserID          uint64 `json:"userId"`
	Upline          uint64 `json:"upline"`
	Level           uint64 `json:"level"`
	Paid            string `json:"paid"`
	AdminFee        string `json:"adminFee"`
	ReferralPaid    string `json:"referralPaid"`
	FallbackPaid    string `json:"fallbackPaid"`
	LevelIncomePaid string `json:"levelIncomePaid"`
	RoyaltyAccrued  string `json:"royaltyAccrued"`
	Retained        string `json:"retained"`
}

type UserResult struct {
	ID              uint64   `json:"id"`
	Account         string   `json:"account"`
	Referrer        uint64   `json:"referrer"`
	Upline          uint64   `json:"upline"`
	Level           uint64   `json:"level"`
	DirectTeam      uint64   `json:"directTeam"`
	TotalMatrixTeam uint64   `json:"totalMatrixTeam"`
	TotalDeposit    string   `json:"totalDeposit"`
	TotalIncome     string   `json:"totalIncome"`
	ReferralIncome  string   `json:"referralIncome"`
	LevelIncome     string   `json:"levelIncome"`
	RoyaltyIncome   string   `json:"royaltyIncome"`
	RegisteredAt    uint64   `json:"registeredAt"`
	IncomeByLevel   []string `json:"incomeByLevel"`
}

type LevelResult struct {
	Level           uint64 `json:"level"`
	Price           string `json:"price"`
	AdminFeePercent uint64 `json:"adminFeePercent"`
	Cost            string `json:"cost"`
}

type SettingsResult struct {
	Owner                    string `json:"owner"`
	FeeReceiver              string `json:"feeReceiver"`
	RoyaltyVault             string `json:"royaltyVault"`
	SponsorCommissionPercent uint64 `json:"sponsorCommissionPercent"`
	SponsorMinLevel          uint64 `json:"sponsorMinLevel"`
	SponsorFallback          string `json:"sponsorFallback"`
	Paused                   bool   `json:"paused"`
}

type PageResult struct {
	IDs   []uint64 `json:"ids"`
	Total uint64   `json:"total"`
}

type DirectResult struct {
	Left  uint64 `json:"left"`
	Right uint64 `json:"right"`
}

type ActivityResult struct {
	UserID    uint64 `json:"userId"`
	Level     uint64 `json:"level"`
	Kind      string `json:"kind"`
	Timestamp uint64 `json:"timestamp"`
}

type TierResult struct {
	Index            uint64 `json:"index"`
	Level            uint64 `json:"level"`
	SharePercent     uint64 `json:"sharePercent"`
	Pool             string `json:"pool"`
	ActiveHolders    uint64 `json:"activeHolders"`
	Round            uint64 `json:"round"`
	LastDistribution uint64 `json:"lastDistribution"`
	SnapshotPool     string `json:"snapshotPool"`
	SnapshotHolders  uint64 `json:"snapshotHolders"`
	TotalAccrued     string `json:"totalAccrued"`
	TotalClaimed     string `json:"totalClaimed"`
}

type EligibilityResult struct {
	Eligible  bool   `json:"eligible"`
	Tier      uint64 `json:"tier"`
	Claimable bool   `json:"claimable"`
}

type AmountResult struct {
	Amount string `json:"amount"`
}

type HoldingsResult struct {
	Vault     string `json:"vault"`
	Deposited string `json:"deposited"`
	Released  string `json:"released"`
}

func formatReceipt(r *matrix.Receipt) ReceiptResult {
	return ReceiptResult{
		UserID:          r.UserID,
		Upline:          r.Upline,
		Level:           r.Level,
		Paid:            bigString(r.Paid),
		AdminFee:        bigString(r.AdminFee),
		ReferralPaid:    bigString(r.ReferralPaid),
		FallbackPaid:    bigString(r.FallbackPaid),
		LevelIncomePaid: bigString(r.LevelIncomePaid),
		RoyaltyAccrued:  bigString(r.RoyaltyAccrued),
		Retained:        bigString(r.Retained),
	}
}

func formatUser(u *matrix.User) UserResult {
	perLevel := make([]string, len(u.IncomeByLevel))
	for i, v := range u.IncomeByLevel {
		perLevel[i] = bigString(v)
	}
	return UserResult{
		ID:              u.ID,
		Account:         formatAddress(u.Account),
		Referrer:        u.Referrer,
		Upline:          u.Upline,
		Level:           u.Level,
		DirectTeam:      u.DirectTeam,
		TotalMatrixTeam: u.TotalMatrixTeam,
		TotalDeposit:    bigString(u.TotalDeposit),
		TotalIncome:     bigString(u.TotalIncome),
		ReferralIncome:  bigString(u.ReferralIncome),
		LevelIncome:     bigString(u.LevelIncome),
		RoyaltyIncome:   bigString(u.RoyaltyIncome),
		RegisteredAt:    u.RegisteredAt,
		IncomeByLevel:   perLevel,
	}
}

func formatTier(t *matrix.RoyaltyTier) TierResult {
	return TierResult{
		Index:            t.Index,
		Level:            t.Level,
		SharePercent:     t.SharePercent,
		Pool:             bigString(t.Pool),
		ActiveHolders:    t.ActiveHolders,
		Round:            t.Round,
		LastDistribution: t.LastDistribution,
		SnapshotPool:     bigString(t.SnapshotPool),
		SnapshotHolders:  t.SnapshotHolders,
		TotalAccrued:     bigString(t.TotalAccrued),
		TotalClaimed:     bigString(t.TotalClaimed),
	}
}

func (s *Server) matrixMethods() map[string]method {
	return map[string]method{
		"matrix_register":             {auth: true, signer: "payer", fn: s.handleRegister},
		"matrix_registerWithParent":   {auth: true, signer: "payer", fn: s.handleRegisterWithParent},
		"matrix_upgrade":              {auth: true, signer: "payer", fn: s.handleUpgrade},
		"matrix_claimRoyalty":         {auth: true, signer: "caller", fn: s.handleClaimRoyalty},
		"matrix_setPaused":            {auth: true, signer: "caller", fn: s.handleSetPaused},
		"matrix_setFeeReceiver":       {auth: true, signer: "caller", fn: s.handleSetFeeReceiver},
		"matrix_setRoyaltyVault":      {auth: true, signer: "caller", fn: s.handleSetRoyaltyVault},
		"matrix_setSponsorCommission": {auth: true, signer: "caller", fn: s.handleSetSponsorCommission},
		"matrix_setSponsorMinLevel":   {auth: true, signer: "caller", fn: s.handleSetSponsorMinLevel},
		"matrix_setSponsorFallback":   {auth: true, signer: "caller", fn: s.handleSetSponsorFallback},
		"matrix_updateLevelPrices":    {auth: true, signer: "caller", fn: s.handleUpdateLevelPrices},
		"matrix_setLevelFees":         {auth: true, signer: "caller", fn: s.handleSetLevelFees},
		"matrix_transferOwnership":    {auth: true, signer: "caller", fn: s.handleTransferOwnership},
		"matrix_emergencyWithdraw":    {auth: true, signer: "caller", fn: s.handleEmergencyWithdraw},
		"matrix_syncOraclePrices":     {auth: true, signer: "caller", fn: s.handleSyncOraclePrices},

		"matrix_getLevels":         {fn: s.handleGetLevels},
		"matrix_settings":          {fn: s.handleSettings},
		"matrix_totalUsers":        {fn: s.handleTotalUsers},
		"matrix_userById":          {fn: s.handleUserByID},
		"matrix_userByAccount":     {fn: s.handleUserByAccount},
		"matrix_levelIncome":       {fn: s.handleLevelIncome},
		"matrix_directTeam":        {fn: s.handleDirectTeam},
		"matrix_matrixDirect":      {fn: s.handleMatrixDirect},
		"matrix_matrixUsers":       {fn: s.handleMatrixUsers},
		"matrix_recentActivities":  {fn: s.handleRecentActivities},
		"matrix_royaltyTier":       {fn: s.handleRoyaltyTier},
		"matrix_isRoyaltyEligible": {fn: s.handleRoyaltyEligible},
		"matrix_registrationCost":  {fn: s.handleRegistrationCost},
		"matrix_upgradeCost":       {fn: s.handleUpgradeCost},
		"matrix_balance":           {fn: s.handleBalance},
		"matrix_vaultHoldings":     {fn: s.handleVaultHoldings},
		"matrix_audit":             {fn: s.handleAudit},
	}
}

func (s *Server) handleRegister(_ context.Context, raw []json.RawMessage) (interface{}, *RPCError) {
	var params registerParams
	if rpcErr := decodeParams(raw, &params, false); rpcErr != nil {
		return nil, rpcErr
	}
	payer, rpcErr := parseAddress("payer", params.Payer)
	if rpcErr != nil {
		return nil, rpcErr
	}
	account, rpcErr := parseAddress("account", params.Account)
	if rpcErr != nil {
		return nil, rpcErr
	}
	value, rpcErr := parseAmount("value", params.Value)
	if rpcErr != nil {
		return nil, rpcErr
	}
	receipt, err := s.node.MatrixRegister(payer, account, params.ReferrerID, value)
	if err != nil {
		return nil, engineError(err)
	}
	return formatReceipt(receipt), nil
}

func (s *Server) handleRegisterWithParent(_ context.Context, raw []json.RawMessage) (interface{}, *RPCError) {
	var params registerParams
	if rpcErr := decodeParams(raw, &params, false); rpcErr != nil {
		return nil, rpcErr
	}
	if params.ParentID == 0 {
		return nil, invalidParams("parentId is required", nil)
	}
	payer, rpcErr := parseAddress("payer", params.Payer)
	if rpcErr != nil {
		return nil, rpcErr
	}
	account, rpcErr := parseAddress("account", params.Account)
	if rpcErr != nil {
		return nil, rpcErr
	}
	value, rpcErr := parseAmount("value", params.Value)
	if rpcErr != nil {
		return nil, rpcErr
	}
	receipt, err := s.node.MatrixRegisterWithParent(payer, account, params.ReferrerID, params.ParentID, value)
	if err != nil {
		return nil, engineError(err)
	}
	return formatReceipt(receipt), nil
}

func (s *Server) handleUpgrade(_ context.Context, raw []json.RawMessage) (interface{}, *RPCError) {
	var params upgradeParams
	if rpcErr := decodeParams(raw, &params, false); rpcErr != nil {
		return nil, rpcErr
	}
	payer, rpcErr := parseAddress("payer", params.Payer)
	if rpcErr != nil {
		return nil, rpcErr
	}
	value, rpcErr := parseAmount("value", params.Value)
	if rpcErr != nil {
		return nil, rpcErr
	}
	receipt, err := s.node.MatrixUpgrade(payer, params.ID, params.Count, value)
	if err != nil {
		return nil, engineError(err)
	}
	return formatReceipt(receipt), nil
}

func (s *Server) handleClaimRoyalty(_ context.Context, raw []json.RawMessage) (interface{}, *RPCError) {
	var params claimRoyaltyParams
	if rpcErr := decodeParams(raw, &params, false); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, err := s.node.MatrixClaimRoyalty(caller, params.Tier)
	if err != nil {
		return nil, engineError(err)
	}
	return AmountResult{Amount: bigString(amount)}, nil
}

func (s *Server) handleSetPaused(_ context.Context, raw []json.RawMessage) (interface{}, *RPCError) {
	var params setPausedParams
	if rpcErr := decodeParams(raw, &params, false); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.node.MatrixSetPaused(caller, params.Paused); err != nil {
		return nil, engineError(err)
	}
	return s.settingsResult()
}

// adminAddressCall decodes caller and address and applies fn.
func (s *Server) adminAddressCall(raw []json.RawMessage, fn func(caller, addr [20]byte) error) (interface{}, *RPCError) {
	var params addressParams
	if rpcErr := decodeParams(raw, &params, false); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := parseAddress("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := fn(caller, addr); err != nil {
		return nil, engineError(err)
	}
	return s.settingsResult()
}

func (s *Server) handleSetFeeReceiver(_ context.Context, raw []json.RawMessage) (interface{}, *RPCError) {
	return s.adminAddressCall(raw, s.node.MatrixSetFeeReceiver)
}

func (s *Server) handleSetRoyaltyVault(_ context.Context, raw []json.RawMessage) (interface{}, *RPCError) {
	return s.adminAddressCall(raw, s.node.MatrixSetRoyaltyVault)
}

func (s *Server) handleTransferOwnership(_ context.Context, raw []json.RawMessage) (interface{}, *RPCError) {
	return s.adminAddressCall(raw, s.node.MatrixTransferOwnership)
}

func (s *Server) adminValueCall(raw []json.RawMessage, fn func(caller [20]byte, value uint64) error) (interface{}, *RPCError) {
	var params percentParams
	if rpcErr := decodeParams(raw, &params, false); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := fn(caller, params.Value); err != nil {
		return nil, engineError(err)
	}
	return s.settingsResult()
}

func (s *Server) handleSetSponsorCommission(_ context.Context, raw []json.RawMessage) (interface{}, *RPCError) {
	return s.adminValueCall(raw, s.node.MatrixSetSponsorCommission)
}

func (s *Server) handleSetSponsorMinLevel(_ context.Context, raw []json.RawMessage) (interface{}, *RPCError) {
	return s.adminValueCall(raw, s.node.MatrixSetSponsorMinLevel)
}

func (s *Server) handleSetSponsorFallback(_ context.Context, raw []json.RawMessage) (interface{}, *RPCError) {
	var params fallbackParams
	if rpcErr := decodeParams(raw, &params, false); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	mode, err := matrix.ParseFallbackMode(params.Mode)
	if err != nil {
		return nil, engineError(err)
	}
	if err := s.node.MatrixSetSponsorFallback(caller, mode); err != nil {
		return nil, engineError(err)
	}
	return s.settingsResult()
}

func (s *Server) handleUpdateLevelPrices(_ context.Context, raw []json.RawMessage) (interface{}, *RPCError) {
	var params pricesParams
	if rpcErr := decodeParams(raw, &params, false); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	prices := make([]*big.Int, len(params.Prices))
	for i, p := range params.Prices {
		price, rpcErr := parseAmount("price", p)
		if rpcErr != nil {
			return nil, rpcErr
		}
		prices[i] = price
	}
	if err := s.node.MatrixUpdateLevelPrices(caller, prices); err != nil {
		return nil, engineError(err)
	}
	return s.levelsResult()
}

func (s *Server) handleSetLevelFees(_ context.Context, raw []json.RawMessage) (interface{}, *RPCError) {
	var params feesParams
	if rpcErr := decodeParams(raw, &params, false); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.node.MatrixSetLevelFees(caller, params.Fees); err != nil {
		return nil, engineError(err)
	}
	return s.levelsResult()
}

func (s *Server) handleEmergencyWithdraw(_ context.Context, raw []json.RawMessage) (interface{}, *RPCError) {
	var params callerParams
	if rpcErr := decodeParams(raw, &params, false); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, err := s.node.MatrixEmergencyWithdraw(caller)
	if err != nil {
		return nil, engineError(err)
	}
	return AmountResult{Amount: bigString(amount)}, nil
}

func (s *Server) handleSyncOraclePrices(_ context.Context, raw []json.RawMessage) (interface{}, *RPCError) {
	var params callerParams
	if rpcErr := decodeParams(raw, &params, false); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if _, err := s.node.MatrixSyncOraclePrices(caller); err != nil {
		return nil, engineError(err)
	}
	return s.levelsResult()
}

func (s *Server) levelsResult() (interface{}, *RPCError) {
	levels, err := s.node.MatrixLevels()
	if err != nil {
		return nil, engineError(err)
	}
	out := make([]LevelResult, len(levels))
	for i, lvl := range levels {
		out[i] = LevelResult{
			Level:           uint64(i + 1),
			Price:           bigString(lvl.Price),
			AdminFeePercent: lvl.AdminFeePercent,
			Cost:            lvl.Cost().String(),
		}
	}
	return out, nil
}

func (s *Server) settingsResult() (interface{}, *RPCError) {
	settings, err := s.node.MatrixSettings()
	if err != nil {
		return nil, engineError(err)
	}
	return SettingsResult{
		Owner:                    formatAddress(settings.Owner),
		FeeReceiver:              formatAddress(settings.FeeReceiver),
		RoyaltyVault:             formatAddress(settings.RoyaltyVault),
		SponsorCommissionPercent: settings.SponsorCommissionPercent,
		SponsorMinLevel:          settings.SponsorMinLevel,
		SponsorFallback:          settings.Fallback().String(),
		Paused:                   settings.Paused,
	}, nil
}

func (s *Server) handleGetLevels(_ context.Context, _ []json.RawMessage) (interface{}, *RPCError) {
	return s.levelsResult()
}

func (s *Server) handleSettings(_ context.Context, _ []json.RawMessage) (interface{}, *RPCError) {
	return s.settingsResult()
}

func (s *Server) handleTotalUsers(_ context.Context, _ []json.RawMessage) (interface{}, *RPCError) {
	total, err := s.node.MatrixTotalUsers()
	if err != nil {
		return nil, engineError(err)
	}
	return total, nil
}

func (s *Server) handleUserByID(_ context.Context, raw []json.RawMessage) (interface{}, *RPCError) {
	var params idParams
	if rpcErr := decodeParams(raw, &params, false); rpcErr != nil {
		return nil, rpcErr
	}
	user, err := s.node.MatrixUser(params.ID)
	if err != nil {
		return nil, engineError(err)
	}
	return formatUser(user), nil
}

func (s *Server) handleUserByAccount(_ context.Context, raw []json.RawMessage) (interface{}, *RPCError) {
	var params accountParams
	if rpcErr := decodeParams(raw, &params, false); rpcErr != nil {
		return nil, rpcErr
	}
	account, rpcErr := parseAddress("account", params.Account)
	if rpcErr != nil {
		return nil, rpcErr
	}
	user, err := s.node.MatrixUserByAccount(account)
	if err != nil {
		return nil, engineError(err)
	}
	return formatUser(user), nil
}

func (s *Server) handleLevelIncome(_ context.Context, raw []json.RawMessage) (interface{}, *RPCError) {
	var params idParams
	if rpcErr := decodeParams(raw, &params, false); rpcErr != nil {
		return nil, rpcErr
	}
	income, err := s.node.MatrixLevelIncome(params.ID)
	if err != nil {
		return nil, engineError(err)
	}
	out := make([]string, len(income))
	for i, v := range income {
		out[i] = bigString(v)
	}
	return out, nil
}

func (s *Server) handleDirectTeam(_ context.Context, raw []json.RawMessage) (interface{}, *RPCError) {
	var params pageParams
	if rpcErr := decodeParams(raw, &params, false); rpcErr != nil {
		return nil, rpcErr
	}
	ids, total, err := s.node.MatrixDirectTeam(params.ID, params.Start, params.Limit)
	if err != nil {
		return nil, engineError(err)
	}
	return PageResult{IDs: ids, Total: total}, nil
}

func (s *Server) handleMatrixDirect(_ context.Context, raw []json.RawMessage) (interface{}, *RPCError) {
	var params idParams
	if rpcErr := decodeParams(raw, &params, false); rpcErr != nil {
		return nil, rpcErr
	}
	left, right, err := s.node.MatrixDirect(params.ID)
	if err != nil {
		return nil, engineError(err)
	}
	return DirectResult{Left: left, Right: right}, nil
}

func (s *Server) handleMatrixUsers(_ context.Context, raw []json.RawMessage) (interface{}, *RPCError) {
	var params pageParams
	if rpcErr := decodeParams(raw, &params, false); rpcErr != nil {
		return nil, rpcErr
	}
	ids, total, err := s.node.MatrixUsers(params.ID, params.Layer, params.Start, params.Limit)
	if err != nil {
		return nil, engineError(err)
	}
	return PageResult{IDs: ids, Total: total}, nil
}

func (s *Server) handleRecentActivities(_ context.Context, raw []json.RawMessage) (interface{}, *RPCError) {
	params := countParams{Count: matrix.MaxRecentActivities}
	if rpcErr := decodeParams(raw, &params, true); rpcErr != nil {
		return nil, rpcErr
	}
	feed, err := s.node.MatrixRecentActivities(params.Count)
	if err != nil {
		return nil, engineError(err)
	}
	out := make([]ActivityResult, len(feed))
	for i, a := range feed {
		out[i] = ActivityResult{
			UserID:    a.UserID,
			Level:     a.Level,
			Kind:      matrix.ActivityKind(a.Kind).String(),
			Timestamp: a.Timestamp,
		}
	}
	return out, nil
}

func (s *Server) handleRoyaltyTier(_ context.Context, raw []json.RawMessage) (interface{}, *RPCError) {
	var params tierParams
	if rpcErr := decodeParams(raw, &params, false); rpcErr != nil {
		return nil, rpcErr
	}
	tier, err := s.node.MatrixRoyaltyTier(params.Tier)
	if err != nil {
		return nil, engineError(err)
	}
	return formatTier(tier), nil
}

func (s *Server) handleRoyaltyEligible(_ context.Context, raw []json.RawMessage) (interface{}, *RPCError) {
	var params idParams
	if rpcErr := decodeParams(raw, &params, false); rpcErr != nil {
		return nil, rpcErr
	}
	tier, eligible, claimable, err := s.node.MatrixRoyaltyEligibility(params.ID)
	if err != nil {
		return nil, engineError(err)
	}
	return EligibilityResult{Eligible: eligible, Tier: tier, Claimable: claimable}, nil
}

func (s *Server) handleRegistrationCost(_ context.Context, _ []json.RawMessage) (interface{}, *RPCError) {
	cost, err := s.node.MatrixRegistrationCost()
	if err != nil {
		return nil, engineError(err)
	}
	return AmountResult{Amount: bigString(cost)}, nil
}

func (s *Server) handleUpgradeCost(_ context.Context, raw []json.RawMessage) (interface{}, *RPCError) {
	var params countParams
	if rpcErr := decodeParams(raw, &params, false); rpcErr != nil {
		return nil, rpcErr
	}
	cost, err := s.node.MatrixUpgradeCost(params.ID, params.Count)
	if err != nil {
		return nil, engineError(err)
	}
	return AmountResult{Amount: bigString(cost)}, nil
}

func (s *Server) handleBalance(_ context.Context, raw []json.RawMessage) (interface{}, *RPCError) {
	var params accountParams
	if rpcErr := decodeParams(raw, &params, false); rpcErr != nil {
		return nil, rpcErr
	}
	account, rpcErr := parseAddress("account", params.Account)
	if rpcErr != nil {
		return nil, rpcErr
	}
	balance, err := s.node.Balance(account)
	if err != nil {
		return nil, engineError(err)
	}
	return AmountResult{Amount: bigString(balance)}, nil
}

func (s *Server) handleVaultHoldings(_ context.Context, raw []json.RawMessage) (interface{}, *RPCError) {
	var params accountParams
	if rpcErr := decodeParams(raw, &params, false); rpcErr != nil {
		return nil, rpcErr
	}
	vault, rpcErr := parseAddress("account", params.Account)
	if rpcErr != nil {
		return nil, rpcErr
	}
	holdings, err := s.node.VaultHoldings(vault)
	if err != nil {
		return nil, engineError(err)
	}
	return HoldingsResult{
		Vault:     formatAddress(vault),
		Deposited: bigString(holdings.Deposited),
		Released:  bigString(holdings.Released),
	}, nil
}

func (s *Server) handleAudit(_ context.Context, _ []json.RawMessage) (interface{}, *RPCError) {
	if err := s.node.MatrixAudit(); err != nil {
		return nil, engineError(err)
	}
	return map[string]bool{"ok": true}, nil
}
