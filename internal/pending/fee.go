package pending

import (
	"errors"
	"fmt"

	"github.com/traversefi/traverse/internal/money"
)

// ErrFeeLevelUnavailable is returned when a fee level is requested that
// the engine does not offer for this transfer.
var ErrFeeLevelUnavailable = errors.New("fee level not available")

// FeeLevel is a named fee-priority option.
type FeeLevel string

const (
	// FeeNone means the rail charges no selectable fee.
	FeeNone FeeLevel = "NONE"
	// FeeRegular is the default network fee.
	FeeRegular FeeLevel = "REGULAR"
	// FeePriority is an expedited network fee.
	FeePriority FeeLevel = "PRIORITY"
	// FeeCustom is a user-supplied fee amount.
	FeeCustom FeeLevel = "CUSTOM"
)

// FeeSelection holds the chosen fee level, the levels the engine offers,
// and the resolved fee magnitude per level.
type FeeSelection struct {
	Selected  FeeLevel                 `json:"selected"`
	Available []FeeLevel               `json:"available"`
	Amounts   map[FeeLevel]money.Money `json:"amounts"`
	// CustomAmount is the user-entered fee when Selected is FeeCustom.
	CustomAmount money.Money `json:"custom_amount,omitempty"`
}

// Supports reports whether the level is offered for this transfer.
func (fs FeeSelection) Supports(level FeeLevel) bool {
	for _, l := range fs.Available {
		if l == level {
			return true
		}
	}
	return false
}

// AmountFor resolves the fee magnitude for a level.
func (fs FeeSelection) AmountFor(level FeeLevel) (money.Money, error) {
	if !fs.Supports(level) {
		return money.Money{}, fmt.Errorf("%w: %s", ErrFeeLevelUnavailable, level)
	}
	if level == FeeCustom {
		return fs.CustomAmount, nil
	}
	m, ok := fs.Amounts[level]
	if !ok {
		return money.Money{}, fmt.Errorf("%w: no amount resolved for %s", ErrFeeLevelUnavailable, level)
	}
	return m, nil
}

// Limits bounds the transferable amount. Min or Max may be nil when the
// rail imposes no bound on that side.
type Limits struct {
	Min *money.Money `json:"min,omitempty"`
	Max *money.Money `json:"max,omitempty"`
	// SilverTierMax and GoldTierMax are the verification-tier maxima;
	// PaymentMethodMax bounds a single payment method. Nil when the
	// bound does not apply to this rail.
	SilverTierMax    *money.Money `json:"silver_tier_max,omitempty"`
	GoldTierMax      *money.Money `json:"gold_tier_max,omitempty"`
	PaymentMethodMax *money.Money `json:"payment_method_max,omitempty"`
	// UpgradeHint names the verification tier that would raise Max,
	// empty when no upgrade applies.
	UpgradeHint string `json:"upgrade_hint,omitempty"`
}
