package hub

import (
	"Intralink/internal/model"
	"sort"
)

// MonitorService provides methods to gather hub statistics
type MonitorService struct {
	hub *Hub
}

// NewMonitorService creates a new monitor service
func NewMonitorService(hub *Hub) *MonitorService {
	return &MonitorService{hub: hub}
}

// GetStats gathers and returns all hub statistics
func (ms *MonitorService) GetStats() model.MonitorResponse {
	connectionStats := ms.getConnectionStats()
	groupStats := ms.getGroupStats()
	sessions := ms.getSessionList()

	// Determine overall health status
	status := "healthy"
	if connectionStats.TotalConnections == 0 {
		status = "idle"
	}

	return model.MonitorResponse{
		Status:      status,
		Connections: connectionStats,
		Groups:      groupStats,
		Sessions:    sessions,
	}
}

// getConnectionStats returns connection statistics
func (ms *MonitorService) getConnectionStats() model.ConnectionStats {
	total, users, userChannel, messageChannel := ms.hub.sessions.Counts()
	return model.ConnectionStats{
		TotalConnections: total,
		TotalUsers:       users,
		UserChannel:      userChannel,
		MessageChannel:   messageChannel,
	}
}

// getGroupStats returns broadcast group statistics
func (ms *MonitorService) getGroupStats() model.GroupStats {
	stats := model.GroupStats{
		GroupDetails: make([]model.GroupInfo, 0),
	}

	// Iterate through all shards to collect group info
	for _, bucket := range ms.hub.shards {
		bucket.RLock()
		for name, group := range bucket.groups {
			stats.GroupDetails = append(stats.GroupDetails, model.GroupInfo{
				Name:        name,
				Subscribers: len(group),
			})
			stats.TotalGroups++
		}
		bucket.RUnlock()
	}

	sort.Slice(stats.GroupDetails, func(i, j int) bool {
		return stats.GroupDetails[i].Name < stats.GroupDetails[j].Name
	})
	return stats
}

// getSessionList returns every connected user with their connection IDs
func (ms *MonitorService) getSessionList() []model.SessionInfo {
	snapshot := ms.hub.sessions.Snapshot()

	sessions := make([]model.SessionInfo, 0, len(snapshot))
	for userID, connIDs := range snapshot {
		sessions = append(sessions, model.SessionInfo{
			UserID:        userID,
			ConnectionIDs: connIDs,
		})
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UserID < sessions[j].UserID
	})
	return sessions
}
