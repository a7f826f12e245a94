// Package retention computes which existing artifacts to delete so that at
// most a configured number of the newest remain per database.
package retention

// SelectForDeletion returns the names to delete from an oldest-first listing
// so that at most keep names remain. The input is never mutated; the result
// is a fresh slice of exactly max(0, len(existing)-keep) names, the
// lexicographically smallest (oldest) ones.
//
// keep == 0 is a valid configuration and selects everything.
//
// Precondition: existing sorts lexicographically in chronological order,
// which the default naming pattern's date/time prefix guarantees.
func SelectForDeletion(existingOldestFirst []string, keep int) []string {
	if keep < 0 {
		keep = 0
	}
	excess := len(existingOldestFirst) - keep
	if excess <= 0 {
		return nil
	}
	doomed := make([]string, excess)
	copy(doomed, existingOldestFirst[:excess])
	return doomed
}
