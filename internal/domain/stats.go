package domain

// BucketCount holds the ticket counts for one time bucket.
// Redeemed + NotRedeemed == Total always holds.
// swagger:model BucketCount
type BucketCount struct {
	Total       int `json:"total"`
	Redeemed    int `json:"redeemed"`
	NotRedeemed int `json:"not_redeemed"`
}

// StatsSnapshot is the aggregate issuance/redemption report. Days and DayHours
// list the bucket keys in lexicographic order so presentation layers get
// deterministic output regardless of ticket insertion order.
// swagger:model StatsSnapshot
type StatsSnapshot struct {
	ByDay         map[string]BucketCount `json:"by_day"`
	ByDayHour     map[string]BucketCount `json:"by_day_hour"`
	RedeemedSplit BucketCount            `json:"redeemed_split"`
	Days          []string               `json:"days"`
	DayHours      []string               `json:"day_hours"`
}
