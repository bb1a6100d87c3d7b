package domain

// Summary aggregates what a user has on their plate
type Summary struct {
	ToAcknowledge       int
	ToComplete          int
	Returned            int
	UnreadNotifications int
}
