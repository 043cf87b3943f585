// Package secrets provides the key/value secret persistence consumed by the
// OAuth flow. Values are opaque strings keyed by (namespace, account).
package secrets

import (
	"context"
	"fmt"
)

// Namespace is the fixed secret namespace for all stored credential records.
const Namespace = "streaming-enhancement"

// Store is the narrow secret persistence contract.
type Store interface {
	Get(ctx context.Context, namespace, account string) (string, error)
	Set(ctx context.Context, namespace, account, value string) error
	Has(ctx context.Context, namespace, account string) (bool, error)
}

// ErrNotFound is returned by Get when no value exists for the account.
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "secret not found" }

// OAuthAccount builds the account key for one user's tokens on one platform.
func OAuthAccount(platform, username string) string {
	return fmt.Sprintf("oauth:%s:%s", platform, username)
}
