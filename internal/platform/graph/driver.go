// Package graph is the adapter for the insurance graph store. It runs
// parameterized Cypher in managed transactions on short-lived sessions and
// returns records with nodes and relationships flattened to their
// properties.
package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// DriverConfig configures the Neo4j driver. The URI scheme selects routing
// and encryption (bolt://, neo4j://, neo4j+s://, ...).
type DriverConfig struct {
	URI            string
	Username       string
	Password       string
	MaxPoolSize    int
	ConnectTimeout time.Duration
}

// NewDriver creates a driver and verifies that the server is reachable.
func NewDriver(ctx context.Context, dc DriverConfig) (neo4j.DriverWithContext, error) {
	driver, err := neo4j.NewDriverWithContext(dc.URI, neo4j.BasicAuth(dc.Username, dc.Password, ""), func(c *neo4j.Config) {
		if dc.MaxPoolSize > 0 {
			c.MaxConnectionPoolSize = dc.MaxPoolSize
		}
		if dc.ConnectTimeout > 0 {
			c.SocketConnectTimeout = dc.ConnectTimeout
			c.ConnectionAcquisitionTimeout = dc.ConnectTimeout
		}
	})
	if err != nil {
		return nil, fmt.Errorf("create graph driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify graph connectivity: %w", err)
	}
	return driver, nil
}
