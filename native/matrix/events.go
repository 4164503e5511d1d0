package matrix

import (
	"math/big"
	"strconv"
	"strings"

	"matrixchain/core/events"
	"matrixchain/core/types"
)

const (
	EventTypeRegistered           = "matrix.registered"
	EventTypeUpgraded             = "matrix.upgraded"
	EventTypeIncomeCredited       = "matrix.income.credited"
	EventTypeRoyaltyClaimed       = "matrix.royalty.claimed"
	EventTypePausedSet            = "matrix.admin.paused"
	EventTypeFeeReceiverSet       = "matrix.admin.fee_receiver"
	EventTypeRoyaltyVaultSet      = "matrix.admin.royalty_vault"
	EventTypeSponsorCommissionSet = "matrix.admin.sponsor_commission"
	EventTypeSponsorMinLevelSet   = "matrix.admin.sponsor_min_level"
	EventTypeSponsorFallbackSet   = "matrix.admin.sponsor_fallback"
	EventTypeLevelPricesUpdated   = "matrix.admin.level_prices"
	EventTypeLevelFeesUpdated     = "matrix.admin.level_fees"
	EventTypeOwnershipTransferred = "matrix.admin.ownership"
	EventTypeEmergencyWithdraw    = "matrix.admin.emergency_withdraw"
)

type eventEnvelope struct {
	evt *types.Event
}

func (e eventEnvelope) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e eventEnvelope) Event() *types.Event { return e.evt }

// WrapEvent converts a raw event payload into the emitter-friendly envelope.
func WrapEvent(evt *types.Event) events.Event { return eventEnvelope{evt: evt} }

func idString(id uint64) string { return strconv.FormatUint(id, 10) }

// RegisteredEvent announces a new participant and where it was placed.
func RegisteredEvent(id, referrer, upline uint64, account string) *types.Event {
	return &types.Event{
		Type: EventTypeRegistered,
		Attributes: map[string]string{
			"id":       idString(id),
			"referrer": idString(referrer),
			"upline":   idString(upline),
			"account":  account,
		},
	}
}

// UpgradedEvent reports the level a participant reached.
func UpgradedEvent(id, newLevel uint64) *types.Event {
	return &types.Event{
		Type: EventTypeUpgraded,
		Attributes: map[string]string{
			"id":    idString(id),
			"level": idString(newLevel),
		},
	}
}

// IncomeCreditedEvent records a credit together with the excess held back by
// the ROI cap. Held back level income stays in the treasury and held back
// royalty stays in the tier pool.
func IncomeCreditedEvent(id uint64, kind IncomeKind, from uint64, level uint64, credited, retained *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeIncomeCredited,
		Attributes: map[string]string{
			"id":       idString(id),
			"kind":     string(kind),
			"from":     idString(from),
			"level":    idString(level),
			"amount":   nonNil(credited).String(),
			"retained": nonNil(retained).String(),
		},
	}
}

// RoyaltyClaimedEvent reports a royalty payout for a tier round.
func RoyaltyClaimedEvent(id, tier, round uint64, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeRoyaltyClaimed,
		Attributes: map[string]string{
			"id":     idString(id),
			"tier":   idString(tier),
			"round":  idString(round),
			"amount": nonNil(amount).String(),
		},
	}
}

func settingEvent(eventType string, attrs map[string]string) *types.Event {
	return &types.Event{Type: eventType, Attributes: attrs}
}

func priceList(levels []LevelEntry) string {
	parts := make([]string, len(levels))
	for i, lvl := range levels {
		parts[i] = nonNil(lvl.Price).String()
	}
	return strings.Join(parts, ",")
}

func feeList(levels []LevelEntry) string {
	parts := make([]string, len(levels))
	for i, lvl := range levels {
		parts[i] = strconv.FormatUint(lvl.AdminFeePercent, 10)
	}
	return strings.Join(parts, ",")
}
