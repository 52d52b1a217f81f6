package storage

import (
	"github.com/flowforge/core/internal/domain"
	"github.com/flowforge/core/internal/storage/models"
)

func domainToWorkflowModel(w *domain.Workflow) *models.WorkflowModel {
	return &models.WorkflowModel{
		ID:                     w.ID,
		Slug:                   w.Slug,
		Name:                   w.Name,
		Description:            w.Description,
		OwnerID:                w.OwnerID,
		IsActive:               w.IsActive,
		IsDefault:              w.IsDefault,
		Tags:                   models.StringList(w.Tags),
		MaxExecutionSeconds:    w.MaxExecutionSeconds,
		InputSchema:            models.RawJSON(w.InputSchema),
		OutputSchema:           models.RawJSON(w.OutputSchema),
		ErrorHandlerWorkflowID: w.ErrorHandlerWorkflowID,
		CreatedAt:              w.CreatedAt,
		UpdatedAt:              w.UpdatedAt,
		DeletedAt:              w.DeletedAt,
	}
}

func domainToNodeModel(n *domain.Node, workflowID string) *models.NodeModel {
	// NodeModel.ID is a synthetic row id distinct from the logical NodeID
	// (n.ID); it is left zero here and writeNodesAndEdges assigns a fresh
	// UUID on each insert, since Update deletes and reinserts the full node set.
	m := &models.NodeModel{
		WorkflowID:      workflowID,
		NodeID:          n.ID,
		ComponentType:   string(n.ComponentType),
		SubworkflowID:   n.SubworkflowID,
		CodeBlockID:     n.CodeBlockID,
		IsEntryPoint:    n.IsEntryPoint,
		InterruptBefore: n.InterruptBefore,
		InterruptAfter:  n.InterruptAfter,
		UpdatedAt:       n.UpdatedAt,
	}
	if n.ComponentConfig != nil {
		m.ComponentConfigID = n.ComponentConfig.ID
	}
	return m
}

func domainToEdgeModel(e *domain.Edge, workflowID string) *models.EdgeModel {
	mapping := make(models.JSONBMap, len(e.ConditionMapping))
	for k, v := range e.ConditionMapping {
		mapping[k] = v
	}
	return &models.EdgeModel{
		WorkflowID:       workflowID,
		SourceNodeID:     e.SourceNodeID,
		TargetNodeID:     e.TargetNodeID,
		EdgeType:         string(e.EdgeType),
		EdgeLabel:        string(e.EdgeLabel),
		ConditionValue:   e.ConditionValue,
		ConditionMapping: mapping,
		Priority:         e.Priority,
	}
}

func domainToComponentConfigModel(c *domain.ComponentConfig) *models.ComponentConfig {
	return &models.ComponentConfig{
		ID:               c.ID,
		ComponentType:    string(c.ComponentType),
		SystemPrompt:     c.SystemPrompt,
		ExtraConfig:      models.RawJSON(c.ExtraConfig),
		ModelName:        c.ModelName,
		Temperature:      c.Temperature,
		MaxTokens:        c.MaxTokens,
		TopP:             c.TopP,
		FrequencyPenalty: c.FrequencyPenalty,
		PresencePenalty:  c.PresencePenalty,
		TimeoutSeconds:   c.TimeoutSeconds,
		MaxRetries:       c.MaxRetries,
		ResponseFormat:   c.ResponseFormat,
		LLMCredentialID:  c.LLMCredentialID,
		LLMModelConfigID: c.LLMModelConfigID,
		CredentialID:     c.CredentialID,
		IsActive:         c.IsActive,
		Priority:         c.Priority,
		TriggerConfig:    models.RawJSON(c.TriggerConfig),
		UpdatedAt:        c.UpdatedAt,
	}
}
