package matrix

import "errors"

var (
	ErrAlreadyRegistered  = errors.New("matrix: already registered")
	ErrNotRegistered      = errors.New("matrix: not registered")
	ErrInvalidReferrer    = errors.New("matrix: invalid referrer")
	ErrInvalidAmount      = errors.New("matrix: invalid amount")
	ErrMaxLevelReached    = errors.New("matrix: maximum level reached")
	ErrContractPaused     = errors.New("matrix: contract paused")
	ErrUnauthorized       = errors.New("matrix: unauthorized")
	ErrInvalidPercentage  = errors.New("matrix: invalid percentage")
	ErrInvalidLevel       = errors.New("matrix: invalid level")
	ErrInvalidAddress     = errors.New("matrix: invalid address")
	ErrInvalidFallback    = errors.New("matrix: invalid fallback mode")
	ErrNotEligible        = errors.New("matrix: not eligible")
	ErrNotInitialized     = errors.New("matrix: not initialized")
	ErrAlreadyInitialized = errors.New("matrix: already initialized")

	errNilState    = errors.New("matrix: state not configured")
	errNilBank     = errors.New("matrix: bank not configured")
	errNilVault    = errors.New("matrix: royalty vault not configured")
	errTreeCorrupt = errors.New("matrix: placement tree corrupt")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrAlreadyRegistered, "already_registered"},
	{ErrNotRegistered, "not_registered"},
	{ErrInvalidReferrer, "invalid_referrer"},
	{ErrInvalidAmount, "invalid_amount"},
	{ErrMaxLevelReached, "max_level_reached"},
	{ErrContractPaused, "contract_paused"},
	{ErrUnauthorized, "unauthorized"},
	{ErrInvalidPercentage, "invalid_percentage"},
	{ErrInvalidLevel, "invalid_level"},
	{ErrInvalidAddress, "invalid_address"},
	{ErrInvalidFallback, "invalid_fallback"},
	{ErrNotEligible, "not_eligible"},
	{ErrNotInitialized, "not_initialized"},
	{ErrAlreadyInitialized, "already_initialized"},
}

// Code maps an error to its stable identifier. Errors outside the taxonomy
// map to "internal"; nil maps to "".
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, entry := range errorCodes {
		if errors.Is(err, entry.err) {
			return entry.code
		}
	}
	return "internal"
}
