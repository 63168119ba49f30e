package models

import "time"

// LoginAttempt is an observed authentication outcome. Only its counters outlive the call.
type LoginAttempt struct {
	Timestamp time.Time
	IPAddress string
	Identity  string // email or username as typed
	Success   bool
	UserID    *string // set once the identity resolved to an account
}

// SuspicionReport aggregates the tracker's signals for one identity/IP pair
type SuspicionReport struct {
	BruteForce             bool `json:"brute_force"`
	MultipleFailedLogins   bool `json:"multiple_failed_logins"`
	NewIP                  bool `json:"new_ip"`
	IPFailedAttempts       int  `json:"ip_failed_attempts"`
	IdentityFailedAttempts int  `json:"identity_failed_attempts"`
}
