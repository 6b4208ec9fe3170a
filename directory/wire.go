package directory

import "github.com/najoast/socialshard/core"

// ClaimArgs is the payload of update_claim_username.
type ClaimArgs struct {
	Username          string        `json:"username"`
	PurportedIdentity core.Identity `json:"purported_identity"`
}

// ClaimResult carries the outcome of a claim. Err is empty on success.
type ClaimResult struct {
	Err ClaimError `json:"err,omitempty"`
}

// ResultOf converts the error returned by Claim into a wire result. ok is
// false when err is not a ClaimError.
func ResultOf(err error) (res ClaimResult, ok bool) {
	if err == nil {
		return ClaimResult{}, true
	}
	kind, isClaim := err.(ClaimError)
	if !isClaim {
		return ClaimResult{}, false
	}
	return ClaimResult{Err: kind}, true
}

// AsError returns the refusal as an error, or nil on success.
func (r ClaimResult) AsError() error {
	if r.Err == "" {
		return nil
	}
	return r.Err
}
