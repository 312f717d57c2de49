package repository

import (
	"github.com/m-mizutani/concierge/pkg/interfaces"
	"github.com/m-mizutani/goerr/v2"
)

// ErrNotFound is returned when a state or analytics record does not exist
var ErrNotFound = goerr.New("record not found")

// Repository defines the persistence used by the agent and analytics
type Repository interface {
	interfaces.StateStore
	interfaces.AnalyticsStore
	interfaces.AnalyticsLister
	interfaces.AnalyticsScanner

	// Close releases connections held by the backend
	Close() error
}

const defaultListLimit = 100

func normalizePage(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	return offset, limit
}
