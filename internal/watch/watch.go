// Package watch turns external change notices into module reconfiguration.
package watch

import "context"

// ReloadFunc re-reads module configuration and applies it. source names
// what triggered the reload and is only used for logging.
type ReloadFunc func(ctx context.Context, source string) error
