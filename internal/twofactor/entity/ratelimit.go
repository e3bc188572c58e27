package entity

// RateLimitEntry is the failure history of one source address.
type RateLimitEntry struct {
	// Attempts are unix timestamps of failures within the current window.
	Attempts []int64 `json:"attempts"`
	// LockedUntil is the unix time the lockout ends; 0 means not locked.
	LockedUntil int64 `json:"locked_until"`
}

// RateLimitRecord pairs an entry with its source address for listings.
type RateLimitRecord struct {
	Address string
	Entry   RateLimitEntry
}
