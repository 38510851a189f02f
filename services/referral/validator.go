package referral

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

type Reason string

const (
	ReasonInvalidFormat Reason = "invalid_format"
	ReasonNotFound      Reason = "not_found"
	ReasonSelfReferral  Reason = "self_referral"
	ReasonAlreadyUsed   Reason = "already_used"
)

// ErrMissingRefereeID rejects blank or whitespace-only referee ids.
var ErrMissingRefereeID = errors.New("referral: referee id is required")

func blankID(id string) bool {
	return strings.TrimSpace(id) == ""
}

var codePattern = regexp.MustCompile(`^[A-Z0-9]{8,10}$`)

type ValidationResult struct {
	Valid  bool          `json:"valid"`
	Code   *ReferralCode `json:"code,omitempty"`
	Reason Reason        `json:"reason,omitempty"`
}

// NormalizeCode trims and upper-cases user input.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func ValidCodeFormat(code string) bool {
	return codePattern.MatchString(code)
}

type Validator struct {
	store Store
}

func NewValidator(store Store) *Validator {
	return &Validator{store: store}
}

func (v *Validator) WithStore(store Store) *Validator {
	return &Validator{store: store}
}

// ValidateForRedemption runs the format, existence, self-referral and
// lifetime-uniqueness checks in that order. Rejections are reported in the
// result; only storage failures return an error.
func (v *Validator) ValidateForRedemption(ctx context.Context, code, refereeID string) (ValidationResult, error) {
	if blankID(refereeID) {
		return ValidationResult{}, ErrMissingRefereeID
	}

	code = NormalizeCode(code)
	if !ValidCodeFormat(code) {
		return ValidationResult{Reason: ReasonInvalidFormat}, nil
	}

	record, err := v.store.FindCodeByValue(ctx, code)
	if err != nil {
		return ValidationResult{}, err
	}
	if record == nil {
		return ValidationResult{Reason: ReasonNotFound}, nil
	}

	if strings.EqualFold(strings.TrimSpace(record.OwnerID), strings.TrimSpace(refereeID)) {
		return ValidationResult{Code: record, Reason: ReasonSelfReferral}, nil
	}

	used, err := v.store.HasAnyRedemptionAsReferee(ctx, refereeID)
	if err != nil {
		return ValidationResult{}, err
	}
	if used {
		return ValidationResult{Code: record, Reason: ReasonAlreadyUsed}, nil
	}

	return ValidationResult{Valid: true, Code: record}, nil
}
