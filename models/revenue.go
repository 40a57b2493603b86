package models

// RevenueWindow is a rollup over bookings whose stay touches
// [StartDate, EndDate] (both days inclusive). It is computed on demand.
type RevenueWindow struct {
	StartDate      Date    `json:"start_date"`
	EndDate        Date    `json:"end_date"`
	PropertyID     string  `json:"property_id,omitempty"`
	TotalRevenue   int64   `json:"total_revenue"`
	BookingCount   int     `json:"booking_count"`
	TotalNights    int     `json:"total_nights"`
	AvgNightlyRate float64 `json:"avg_nightly_rate"`
	OccupancyRate  float64 `json:"occupancy_rate"`
}

// DaysInWindow counts both boundary days.
func (w RevenueWindow) DaysInWindow() int {
	return w.StartDate.DaysUntil(w.EndDate) + 1
}
