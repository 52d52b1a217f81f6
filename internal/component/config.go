package component

import (
	"encoding/json"
	"fmt"

	"github.com/flowforge/core/internal/domain"
)

func extraConfig(node *domain.Node, out interface{}) error {
	if node.ComponentConfig == nil || len(node.ComponentConfig.ExtraConfig) == 0 {
		return nil
	}
	if err := json.Unmarshal(node.ComponentConfig.ExtraConfig, out); err != nil {
		return fmt.Errorf("component %s: invalid extra_config: %w", node.ID, err)
	}
	return nil
}
