package connector

import (
	"context"
	"time"

	"github.com/crimson-sun/grouping/internal/model"
)

// Connector defines the interface all event source connectors must implement.
type Connector interface {
	// Stream opens a long-lived connection and sends raw events as they arrive.
	Stream(ctx context.Context, cfg ConnectorConfig) (<-chan model.RawEvent, error)

	// Query fetches a batch of historical events matching the given parameters.
	Query(ctx context.Context, cfg ConnectorConfig, params QueryParams) ([]model.RawEvent, error)
}

// ConnectorConfig holds provider-specific connection settings.
type ConnectorConfig struct {
	Provider string
	APIKey   string
	Endpoint string
	Extra    map[string]string
}

// QueryParams defines filters for historical event queries.
type QueryParams struct {
	Start  time.Time
	End    time.Time
	Limit  int
	Filter string
}
