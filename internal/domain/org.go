package domain

// Organization identifies the billed organization; the name is carried
// into documents for dashboard labels.
type Organization struct {
	ID   string
	Name string
}
