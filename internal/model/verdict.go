package model

// AccountVerdict is the composer's per-account output.
type AccountVerdict struct {
	AccountID        string
	SuspicionScore   int
	DetectedPatterns []string // sorted, may be empty
	RingID           string   // "" if the account is in no ring
	Explanation      string
}

// Ring groups co-implicated accounts under a single pattern.
type Ring struct {
	RingID         string
	PatternType    string // "cycle" | "smurfing" | "shell"
	MemberAccounts []string
	RiskScore      int
}
