package common

import "strings"

// Component names used for per-component log levels and metrics labels.
const (
	ComponentPoller     = "poller"
	ComponentReconciler = "reconciler"
	ComponentStore      = "store"
	ComponentCache      = "cache"
	ComponentLedger     = "ledger-client"
	ComponentReputation = "reputation"
	ComponentAPI        = "api"
)

var AllComponents = map[string]struct{}{
	ComponentPoller:     {},
	ComponentReconciler: {},
	ComponentStore:      {},
	ComponentCache:      {},
	ComponentLedger:     {},
	ComponentReputation: {},
	ComponentAPI:        {},
}

func ToLowerWithTrim(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
