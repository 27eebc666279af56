package metrics

// ClaimAttempt records the terminal state of a claim flow.
func ClaimAttempt(state string) {
	if !enabled {
		return
	}
	claimsTotal.WithLabelValues(state).Inc()
}

// Invalidation records the outcome of a nonce invalidation.
func Invalidation(result string) {
	if !enabled {
		return
	}
	invalidationsTotal.WithLabelValues(result).Inc()
}

// TreasuryFetch records a treasury read and whether token metadata came from cache.
func TreasuryFetch(cache string) {
	if !enabled {
		return
	}
	treasuryFetchTotal.WithLabelValues(cache).Inc()
}

// PermitImport records permits imported from claim data.
func PermitImport(status string, count int) {
	if !enabled {
		return
	}
	permitImportTotal.WithLabelValues(status).Add(float64(count))
}
