package models

import (
	"encoding/json"
	"strconv"

	"github.com/flowforge/core/internal/domain"
)

// WorkflowToDomain converts a fully-loaded WorkflowModel (with Nodes/Edges
// relations populated) into the pure domain.Workflow the topology builder
// and orchestrator consume. Grounded on the teacher's
// engine.WorkflowModelToDomain converter shape.
func WorkflowToDomain(m *WorkflowModel) *domain.Workflow {
	w := &domain.Workflow{
		ID:                     m.ID,
		Slug:                   m.Slug,
		Name:                   m.Name,
		Description:            m.Description,
		OwnerID:                m.OwnerID,
		IsActive:               m.IsActive,
		IsDefault:              m.IsDefault,
		Tags:                   []string(m.Tags),
		MaxExecutionSeconds:    m.MaxExecutionSeconds,
		InputSchema:            json.RawMessage(m.InputSchema),
		OutputSchema:           json.RawMessage(m.OutputSchema),
		ErrorHandlerWorkflowID: m.ErrorHandlerWorkflowID,
		CreatedAt:              m.CreatedAt,
		UpdatedAt:              m.UpdatedAt,
		DeletedAt:              m.DeletedAt,
	}
	for _, n := range m.Nodes {
		w.Nodes = append(w.Nodes, NodeToDomain(n))
	}
	for _, e := range m.Edges {
		w.Edges = append(w.Edges, EdgeToDomain(e))
	}
	return w
}

// NodeToDomain converts one NodeModel (with its ComponentConfig relation
// populated) into a domain.Node.
func NodeToDomain(m *NodeModel) *domain.Node {
	n := &domain.Node{
		ID:              m.NodeID,
		WorkflowID:      m.WorkflowID,
		ComponentType:   domain.ComponentType(m.ComponentType),
		SubworkflowID:   m.SubworkflowID,
		CodeBlockID:     m.CodeBlockID,
		IsEntryPoint:    m.IsEntryPoint,
		InterruptBefore: m.InterruptBefore,
		InterruptAfter:  m.InterruptAfter,
		UpdatedAt:       m.UpdatedAt,
	}
	if m.ComponentConfig != nil {
		n.ComponentConfig = ComponentConfigToDomain(m.ComponentConfig)
	}
	return n
}

// EdgeToDomain converts one EdgeModel into a domain.Edge.
func EdgeToDomain(m *EdgeModel) *domain.Edge {
	mapping := make(map[string]string, len(m.ConditionMapping))
	for k, v := range m.ConditionMapping {
		if s, ok := v.(string); ok {
			mapping[k] = s
		}
	}
	return &domain.Edge{
		ID:               m.ID,
		WorkflowID:       m.WorkflowID,
		SourceNodeID:     m.SourceNodeID,
		TargetNodeID:     m.TargetNodeID,
		EdgeType:         domain.EdgeType(m.EdgeType),
		EdgeLabel:        domain.EdgeLabel(m.EdgeLabel),
		ConditionValue:   m.ConditionValue,
		ConditionMapping: mapping,
		Priority:         m.Priority,
	}
}

// ComponentConfigToDomain converts one ComponentConfig row into a
// domain.ComponentConfig.
func ComponentConfigToDomain(m *ComponentConfig) *domain.ComponentConfig {
	return &domain.ComponentConfig{
		ID:                m.ID,
		ComponentType:      domain.ComponentType(m.ComponentType),
		UpdatedAt:          m.UpdatedAt,
		SystemPrompt:       m.SystemPrompt,
		ExtraConfig:        json.RawMessage(m.ExtraConfig),
		ModelName:          m.ModelName,
		Temperature:        m.Temperature,
		MaxTokens:          m.MaxTokens,
		TopP:               m.TopP,
		FrequencyPenalty:   m.FrequencyPenalty,
		PresencePenalty:    m.PresencePenalty,
		TimeoutSeconds:     m.TimeoutSeconds,
		MaxRetries:         m.MaxRetries,
		ResponseFormat:     m.ResponseFormat,
		LLMCredentialID:    m.LLMCredentialID,
		LLMModelConfigID:   m.LLMModelConfigID,
		CredentialID:       m.CredentialID,
		IsActive:           m.IsActive,
		Priority:           m.Priority,
		TriggerConfig:      json.RawMessage(m.TriggerConfig),
	}
}

// ExecutionToDomain converts an ExecutionModel into a domain.Execution.
func ExecutionToDomain(m *ExecutionModel) *domain.Execution {
	return &domain.Execution{
		ExecutionID:       m.ExecutionID,
		WorkflowID:        m.WorkflowID,
		TriggerNodeID:     m.TriggerNodeID,
		ParentExecutionID: m.ParentExecutionID,
		ParentNodeID:      m.ParentNodeID,
		UserProfileID:     m.UserProfileID,
		ThreadID:          m.ThreadID,
		Status:            domain.ExecutionStatus(m.Status),
		TriggerPayload:    json.RawMessage(m.TriggerPayload),
		FinalOutput:       json.RawMessage(m.FinalOutput),
		RetryCount:        m.RetryCount,
		MaxRetries:        m.MaxRetries,
		ErrorMessage:      m.ErrorMessage,
		TotalInputTokens:  m.TotalInputTokens,
		TotalOutputTokens: m.TotalOutputTokens,
		TotalCostUSD:      m.TotalCostUSD,
		LLMCalls:          m.LLMCalls,
		StartedAt:         m.StartedAt,
		CompletedAt:       m.CompletedAt,
		CreatedAt:         m.CreatedAt,
	}
}

// ExecutionFromDomain converts a domain.Execution into its row shape for
// insert/update.
func ExecutionFromDomain(e *domain.Execution) *ExecutionModel {
	return &ExecutionModel{
		ExecutionID:       e.ExecutionID,
		WorkflowID:        e.WorkflowID,
		TriggerNodeID:     e.TriggerNodeID,
		ParentExecutionID: e.ParentExecutionID,
		ParentNodeID:      e.ParentNodeID,
		UserProfileID:     e.UserProfileID,
		ThreadID:          e.ThreadID,
		Status:            string(e.Status),
		TriggerPayload:    RawJSON(e.TriggerPayload),
		FinalOutput:       RawJSON(e.FinalOutput),
		RetryCount:        e.RetryCount,
		MaxRetries:        e.MaxRetries,
		ErrorMessage:      e.ErrorMessage,
		TotalInputTokens:  e.TotalInputTokens,
		TotalOutputTokens: e.TotalOutputTokens,
		TotalCostUSD:      e.TotalCostUSD,
		LLMCalls:          e.LLMCalls,
		StartedAt:         e.StartedAt,
		CompletedAt:       e.CompletedAt,
		CreatedAt:         e.CreatedAt,
	}
}

// ExecutionLogToDomain converts an ExecutionLogModel into a domain.ExecutionLog.
func ExecutionLogToDomain(m *ExecutionLogModel) *domain.ExecutionLog {
	return &domain.ExecutionLog{
		ID:          m.ID64(),
		ExecutionID: m.ExecutionID,
		NodeID:      m.NodeID,
		Status:      domain.LogStatus(m.Status),
		Input:       json.RawMessage(m.Input),
		Output:      json.RawMessage(m.Output),
		Error:       m.Error,
		ErrorCode:   m.ErrorCode,
		RetryCount:  m.RetryCount,
		DurationMs:  m.DurationMs,
		Timestamp:   m.Timestamp,
		Metadata:    json.RawMessage(m.Metadata),
	}
}

// ID64 renders the autoincrement ID as the string domain.ExecutionLog.ID
// expects, since the log's identity is never referenced across services.
func (m *ExecutionLogModel) ID64() string {
	if m.ID == 0 {
		return ""
	}
	return strconv.FormatInt(m.ID, 10)
}

// ExecutionLogFromDomain converts a domain.ExecutionLog into its row shape.
func ExecutionLogFromDomain(l *domain.ExecutionLog) *ExecutionLogModel {
	return &ExecutionLogModel{
		ExecutionID: l.ExecutionID,
		NodeID:      l.NodeID,
		Status:      string(l.Status),
		Input:       RawJSON(l.Input),
		Output:      RawJSON(l.Output),
		Error:       l.Error,
		ErrorCode:   l.ErrorCode,
		RetryCount:  l.RetryCount,
		DurationMs:  l.DurationMs,
		Timestamp:   l.Timestamp,
		Metadata:    RawJSON(l.Metadata),
	}
}

// PendingTaskToDomain converts a PendingTaskModel into a domain.PendingTask.
func PendingTaskToDomain(m *PendingTaskModel) *domain.PendingTask {
	return &domain.PendingTask{
		TaskID:         m.TaskID,
		ExecutionID:    m.ExecutionID,
		UserProfileID:  m.UserProfileID,
		ExternalChatID: m.ExternalChatID,
		NodeID:         m.NodeID,
		Prompt:         m.Prompt,
		ExpiresAt:      m.ExpiresAt,
	}
}

// PendingTaskFromDomain converts a domain.PendingTask into its row shape.
func PendingTaskFromDomain(t *domain.PendingTask) *PendingTaskModel {
	return &PendingTaskModel{
		TaskID:         t.TaskID,
		ExecutionID:    t.ExecutionID,
		UserProfileID:  t.UserProfileID,
		ExternalChatID: t.ExternalChatID,
		NodeID:         t.NodeID,
		Prompt:         t.Prompt,
		ExpiresAt:      t.ExpiresAt,
	}
}

// ScheduledJobToDomain converts a ScheduledJobModel into a domain.ScheduledJob.
func ScheduledJobToDomain(m *ScheduledJobModel) *domain.ScheduledJob {
	return &domain.ScheduledJob{
		ID:              m.ID,
		WorkflowID:      m.WorkflowID,
		TriggerNodeID:   m.TriggerNodeID,
		UserProfileID:   m.UserProfileID,
		IntervalSeconds: m.IntervalSeconds,
		TotalRepeats:    m.TotalRepeats,
		MaxRetries:      m.MaxRetries,
		TimeoutSeconds:  m.TimeoutSeconds,
		TriggerPayload:  json.RawMessage(m.TriggerPayload),
		Status:          domain.ScheduledJobStatus(m.Status),
		CurrentRepeat:   m.CurrentRepeat,
		CurrentRetry:    m.CurrentRetry,
		NextRunAt:       m.NextRunAt,
		LastRunAt:       m.LastRunAt,
		RunCount:        m.RunCount,
		ErrorCount:      m.ErrorCount,
		LastError:       m.LastError,
	}
}

// ScheduledJobFromDomain converts a domain.ScheduledJob into its row shape.
func ScheduledJobFromDomain(j *domain.ScheduledJob) *ScheduledJobModel {
	return &ScheduledJobModel{
		ID:              j.ID,
		WorkflowID:      j.WorkflowID,
		TriggerNodeID:   j.TriggerNodeID,
		UserProfileID:   j.UserProfileID,
		IntervalSeconds: j.IntervalSeconds,
		TotalRepeats:    j.TotalRepeats,
		MaxRetries:      j.MaxRetries,
		TimeoutSeconds:  j.TimeoutSeconds,
		TriggerPayload:  RawJSON(j.TriggerPayload),
		Status:          string(j.Status),
		CurrentRepeat:   j.CurrentRepeat,
		CurrentRetry:    j.CurrentRetry,
		NextRunAt:       j.NextRunAt,
		LastRunAt:       j.LastRunAt,
		RunCount:        j.RunCount,
		ErrorCount:      j.ErrorCount,
		LastError:       j.LastError,
	}
}
