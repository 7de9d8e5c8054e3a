package main

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
)

// idSource hands out the identifiers the services need. Users and sessions
// get UUIDs, payment references get KSUIDs so they sort by creation time,
// and log entries get snowflake ids from this replica's node.
type idSource struct {
	node *snowflake.Node
}

func newIDSource(nodeID int) (*idSource, error) {
	node, err := snowflake.NewNode(int64(nodeID))
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", nodeID, err)
	}
	return &idSource{node: node}, nil
}

func (s *idSource) entityID() string { return uuid.NewString() }

func (s *idSource) reference() string { return ksuid.New().String() }

func (s *idSource) eventID() string { return s.node.Generate().String() }
