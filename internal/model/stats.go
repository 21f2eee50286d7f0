package model

// DashboardStats is the summary shown on the dashboard.
type DashboardStats struct {
	MarathonCount      int `json:"marathonCount"`
	ApplicationCount   int `json:"applicationCount"`
	TotalRegistrations int `json:"totalRegistrations"`
	UpcomingCount      int `json:"upcomingCount"`
}

// WriteResult is the backend's acknowledgement of a write.
type WriteResult struct {
	Acknowledged  bool   `json:"acknowledged"`
	InsertedID    string `json:"insertedId,omitempty"`
	ModifiedCount int    `json:"modifiedCount"`
	DeletedCount  int    `json:"deletedCount"`
	Success       bool   `json:"success,omitempty"`
	Message       string `json:"message,omitempty"`
}

// Inserted reports whether a create was accepted.
func (w WriteResult) Inserted() bool {
	return w.InsertedID != "" || w.Acknowledged
}

// Modified reports whether an update changed at least one document. An
// acknowledged write with zero modifications does not count.
func (w WriteResult) Modified() bool {
	return w.ModifiedCount > 0
}

// Deleted reports whether a delete was accepted. A degraded empty response
// is neither acknowledged nor counted.
func (w WriteResult) Deleted() bool {
	return w.Acknowledged || w.DeletedCount > 0
}
