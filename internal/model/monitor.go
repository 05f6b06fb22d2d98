package model

// -----------------------------------------------------------------
// Monitor API Response Models
// -----------------------------------------------------------------

// MonitorResponse is the main response for the monitor API
type MonitorResponse struct {
	Status      string          `json:"status"` // "healthy", "idle"
	Connections ConnectionStats `json:"connections"`
	Groups      GroupStats      `json:"groups"`
	Sessions    []SessionInfo   `json:"sessions"`
}

// ConnectionStats holds connection-related statistics
type ConnectionStats struct {
	TotalConnections int `json:"totalConnections"` // live transport connections
	TotalUsers       int `json:"totalUsers"`       // distinct users with at least one connection
	UserChannel      int `json:"userChannel"`      // connections on the presence channel
	MessageChannel   int `json:"messageChannel"`   // connections on the messaging channel
}

// GroupStats holds broadcast-group statistics
type GroupStats struct {
	TotalGroups  int         `json:"totalGroups"`
	GroupDetails []GroupInfo `json:"groupDetails"`
}

// GroupInfo contains information about a single broadcast group
type GroupInfo struct {
	Name        string `json:"name"`
	Subscribers int    `json:"subscribers"`
}

// SessionInfo contains information about one user's live connections
type SessionInfo struct {
	UserID        string   `json:"userId"`
	ConnectionIDs []string `json:"connectionIds"`
}
