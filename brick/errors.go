package brick

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAlreadyCrafting means the user already has an active crafting session.
	ErrAlreadyCrafting = errors.New("already crafting")
	// ErrBalanceAtMax means the user already holds the maximum bricks.
	ErrBalanceAtMax = errors.New("holding max bricks")
	// ErrNoBalance means the user holds no bricks.
	ErrNoBalance = errors.New("no bricks")
	// ErrOnCooldown means the user slapped too recently.
	// Errors matching it are *CooldownError.
	ErrOnCooldown = errors.New("slap on cooldown")
	// ErrTargetIncapacitated means the slap target is already muted.
	ErrTargetIncapacitated = errors.New("target already incapacitated")
	// ErrAlreadyClaimed means the user already claimed today.
	ErrAlreadyClaimed = errors.New("already claimed today")
	// ErrClaimDisabled means daily claims are not enabled.
	ErrClaimDisabled = errors.New("daily claim disabled")
	// ErrNoTarget means there was nobody to slap.
	ErrNoTarget = errors.New("no slap target")
)

// CooldownError is the error returned for a slap during its actor's cooldown.
type CooldownError struct {
	// Remaining is the time until the actor may slap again,
	// in whole seconds.
	Remaining time.Duration
}

func (err *CooldownError) Error() string {
	return fmt.Sprintf("slap on cooldown for %v", err.Remaining)
}

// Is makes CooldownError match ErrOnCooldown.
func (err *CooldownError) Is(target error) bool {
	return target == ErrOnCooldown
}
