package idgen

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/sheetseries/internal/config"
	"go.uber.org/fx"
)

// NewNode returns the snowflake generator for this process.
func NewNode(cfg config.Config) (*snowflake.Node, error) {
	node, err := snowflake.NewNode(cfg.SnowflakeNode)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", cfg.SnowflakeNode, err)
	}
	return node, nil
}

var Module = fx.Module("idgen",
	fx.Provide(NewNode),
)
