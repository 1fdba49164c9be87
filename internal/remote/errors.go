package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// SQLSTATE codes the sync core treats specially. Everything else is
// considered transient and retried.
const (
	// CodePolicyRecursion signals recursive row-level policy evaluation, a
	// backend misconfiguration. Never retried.
	CodePolicyRecursion = "42P17"
	// CodePermissionDenied signals a row-level permission failure. Never
	// retried this session.
	CodePermissionDenied = "42501"
)

// Error is a failure reported by the remote store.
type Error struct {
	Code    string
	Message string
	Status  int
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("remote store error %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("remote store error (HTTP %d): %s", e.Status, e.Message)
}

// IsPolicyRecursion reports whether err is the recursive-policy backend
// misconfiguration.
func IsPolicyRecursion(err error) bool {
	var re *Error
	if !errors.As(err, &re) {
		return false
	}
	return re.Code == CodePolicyRecursion || strings.Contains(re.Message, "infinite recursion")
}

// IsPermissionDenied reports whether err is a row-level permission failure.
func IsPermissionDenied(err error) bool {
	var re *Error
	if !errors.As(err, &re) {
		return false
	}
	return re.Code == CodePermissionDenied || strings.Contains(re.Message, "policy")
}

// IsFatal reports whether err belongs to a failure class that must not be
// retried: policy recursion or permission denial.
func IsFatal(err error) bool {
	return IsPolicyRecursion(err) || IsPermissionDenied(err)
}

// IsTimeout reports whether err is a bounded-timeout expiry, treated
// identically to a transient network failure.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
