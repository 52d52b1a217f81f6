package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/flowforge/core/internal/component"
	"github.com/flowforge/core/internal/domain"
	"github.com/flowforge/core/internal/state"
)

// PlatformAPI is the external collaborator every platform-management tool
// bundle wraps: CRUD over workflows/users/epics/tasks/schedules lives
// behind this interface rather than in the core, per spec.md §1's
// Non-goals ("end-user CRUD APIs for editing graphs"). A real
// implementation talks to the REST/CRUD surface the core's topology and
// storage packages never touch directly.
type PlatformAPI interface {
	IdentifyUser(ctx context.Context, externalChatID string) (userID string, found bool, err error)
	CreateAgentUser(ctx context.Context, displayName string) (userID string, err error)
	Whoami(ctx context.Context, userID string) (profile map[string]interface{}, err error)
	Call(ctx context.Context, method string, params map[string]interface{}) (result map[string]interface{}, err error)
}

// MemoryStore is the episodic-memory collaborator memory_read/memory_write
// bind to. Rich search over episodic memory is a spec.md §1 Non-goal; this
// interface covers only keyed get/put, enough for an agent to recall and
// record facts across turns.
type MemoryStore interface {
	Read(ctx context.Context, key string) (value interface{}, found bool, err error)
	Write(ctx context.Context, key string, value interface{}) error
}

// SearchProvider is the external web_search collaborator.
type SearchProvider interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

// SearchResult is one hit returned by SearchProvider.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Dependencies bundles every external collaborator the platform-management
// tool bundles need. A nil field disables only the bundles that need it;
// every builder method below returns a clear "not configured" error
// instead of a nil-pointer panic when its dependency is absent.
type Dependencies struct {
	Platform PlatformAPI
	Memory   MemoryStore
	Search   SearchProvider
}

func notConfigured(name string) (component.Tool, error) {
	return nil, fmt.Errorf("tools: %s has no collaborator configured", name)
}

// --- web_search ---

type webSearchTool struct{ search SearchProvider }

func (d Dependencies) buildWebSearch(*domain.Node) (component.Tool, error) {
	if d.Search == nil {
		return notConfigured("web_search")
	}
	return webSearchTool{search: d.Search}, nil
}

func (webSearchTool) Spec() component.ToolSpec {
	return component.ToolSpec{
		Name:        "web_search",
		Description: "Searches the web and returns matching results.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"}},"required":["query"]}`),
	}
}

func (t webSearchTool) Invoke(ctx context.Context, _ *state.State, args json.RawMessage) (interface{}, error) {
	var in struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("web_search: decode args: %w", err)
	}
	results, err := t.search.Search(ctx, in.Query)
	if err != nil {
		return nil, fmt.Errorf("web_search: %w", err)
	}
	return map[string]interface{}{"results": results}, nil
}

// --- memory_read / memory_write ---

type memoryReadTool struct{ store MemoryStore }

func (d Dependencies) buildMemoryRead(*domain.Node) (component.Tool, error) {
	if d.Memory == nil {
		return notConfigured("memory_read")
	}
	return memoryReadTool{store: d.Memory}, nil
}

func (memoryReadTool) Spec() component.ToolSpec {
	return component.ToolSpec{
		Name:        "memory_read",
		Description: "Reads a previously stored value by key.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"key":{"type":"string"}},"required":["key"]}`),
	}
}

func (t memoryReadTool) Invoke(ctx context.Context, _ *state.State, args json.RawMessage) (interface{}, error) {
	var in struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("memory_read: decode args: %w", err)
	}
	value, found, err := t.store.Read(ctx, in.Key)
	if err != nil {
		return nil, fmt.Errorf("memory_read: %w", err)
	}
	return map[string]interface{}{"value": value, "found": found}, nil
}

type memoryWriteTool struct{ store MemoryStore }

func (d Dependencies) buildMemoryWrite(*domain.Node) (component.Tool, error) {
	if d.Memory == nil {
		return notConfigured("memory_write")
	}
	return memoryWriteTool{store: d.Memory}, nil
}

func (memoryWriteTool) Spec() component.ToolSpec {
	return component.ToolSpec{
		Name:        "memory_write",
		Description: "Stores a value under a key for later recall.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"key":{"type":"string"},"value":{}},"required":["key","value"]}`),
	}
}

func (t memoryWriteTool) Invoke(ctx context.Context, _ *state.State, args json.RawMessage) (interface{}, error) {
	var in struct {
		Key   string      `json:"key"`
		Value interface{} `json:"value"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("memory_write: decode args: %w", err)
	}
	if err := t.store.Write(ctx, in.Key, in.Value); err != nil {
		return nil, fmt.Errorf("memory_write: %w", err)
	}
	return map[string]interface{}{"stored": true}, nil
}

// --- identify_user / create_agent_user / whoami ---

type identifyUserTool struct{ api PlatformAPI }

func (d Dependencies) buildIdentifyUser(*domain.Node) (component.Tool, error) {
	if d.Platform == nil {
		return notConfigured("identify_user")
	}
	return identifyUserTool{api: d.Platform}, nil
}

func (identifyUserTool) Spec() component.ToolSpec {
	return component.ToolSpec{
		Name:        "identify_user",
		Description: "Resolves the platform user_id for an external chat identity.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"external_chat_id":{"type":"string"}},"required":["external_chat_id"]}`),
	}
}

func (t identifyUserTool) Invoke(ctx context.Context, _ *state.State, args json.RawMessage) (interface{}, error) {
	var in struct {
		ExternalChatID string `json:"external_chat_id"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("identify_user: decode args: %w", err)
	}
	userID, found, err := t.api.IdentifyUser(ctx, in.ExternalChatID)
	if err != nil {
		return nil, fmt.Errorf("identify_user: %w", err)
	}
	return map[string]interface{}{"user_id": userID, "found": found}, nil
}

type createAgentUserTool struct{ api PlatformAPI }

func (d Dependencies) buildCreateAgentUser(*domain.Node) (component.Tool, error) {
	if d.Platform == nil {
		return notConfigured("create_agent_user")
	}
	return createAgentUserTool{api: d.Platform}, nil
}

func (createAgentUserTool) Spec() component.ToolSpec {
	return component.ToolSpec{
		Name:        "create_agent_user",
		Description: "Registers a new agent-managed platform user.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"display_name":{"type":"string"}},"required":["display_name"]}`),
	}
}

func (t createAgentUserTool) Invoke(ctx context.Context, _ *state.State, args json.RawMessage) (interface{}, error) {
	var in struct {
		DisplayName string `json:"display_name"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("create_agent_user: decode args: %w", err)
	}
	userID, err := t.api.CreateAgentUser(ctx, in.DisplayName)
	if err != nil {
		return nil, fmt.Errorf("create_agent_user: %w", err)
	}
	return map[string]interface{}{"user_id": userID}, nil
}

type whoamiTool struct{ api PlatformAPI }

func (d Dependencies) buildWhoami(*domain.Node) (component.Tool, error) {
	if d.Platform == nil {
		return notConfigured("whoami")
	}
	return whoamiTool{api: d.Platform}, nil
}

func (whoamiTool) Spec() component.ToolSpec {
	return component.ToolSpec{
		Name:        "whoami",
		Description: "Returns the calling user's platform profile.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"user_id":{"type":"string"}},"required":["user_id"]}`),
	}
}

func (t whoamiTool) Invoke(ctx context.Context, _ *state.State, args json.RawMessage) (interface{}, error) {
	var in struct {
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("whoami: decode args: %w", err)
	}
	profile, err := t.api.Whoami(ctx, in.UserID)
	if err != nil {
		return nil, fmt.Errorf("whoami: %w", err)
	}
	return profile, nil
}

// --- generic RPC-style bundles: platform_api, scheduler_tools, epic_tools,
// task_tools, workflow_create, workflow_discover, system_health,
// get_totp_code. Each forwards a fixed method name to PlatformAPI.Call
// with the tool call's arguments as params, mirroring the teacher's
// generic function_call.go adapter shape (one executor, method name and
// description vary by component_type/config).

type rpcTool struct {
	api         PlatformAPI
	name        string
	description string
	method      string
}

func (d Dependencies) rpcBuilder(name, description, method string) Builder {
	return func(*domain.Node) (component.Tool, error) {
		if d.Platform == nil {
			return notConfigured(name)
		}
		return rpcTool{api: d.Platform, name: name, description: description, method: method}, nil
	}
}

func (d Dependencies) buildPlatformAPI(node *domain.Node) (component.Tool, error) {
	return d.rpcBuilder("platform_api", "Calls a named platform API method with the given parameters.", "platform.call")(node)
}

func (d Dependencies) buildSchedulerTools(node *domain.Node) (component.Tool, error) {
	return d.rpcBuilder("scheduler_tools", "Creates, pauses, resumes or inspects recurring scheduled jobs.", "scheduler.manage")(node)
}

func (d Dependencies) buildEpicTools(node *domain.Node) (component.Tool, error) {
	return d.rpcBuilder("epic_tools", "Creates, updates or queries epics.", "epics.manage")(node)
}

func (d Dependencies) buildTaskTools(node *domain.Node) (component.Tool, error) {
	return d.rpcBuilder("task_tools", "Creates, updates or queries tasks within an epic.", "tasks.manage")(node)
}

func (d Dependencies) buildWorkflowCreate(node *domain.Node) (component.Tool, error) {
	return d.rpcBuilder("workflow_create", "Creates a new workflow graph from a structured description.", "workflows.create")(node)
}

func (d Dependencies) buildWorkflowDiscover(node *domain.Node) (component.Tool, error) {
	return d.rpcBuilder("workflow_discover", "Searches existing workflows by name or tag.", "workflows.discover")(node)
}

func (d Dependencies) buildSystemHealth(node *domain.Node) (component.Tool, error) {
	return d.rpcBuilder("system_health", "Reports queue depth, worker count and recent error rate.", "system.health")(node)
}

func (d Dependencies) buildGetTOTPCode(node *domain.Node) (component.Tool, error) {
	return d.rpcBuilder("get_totp_code", "Returns the current TOTP code for a stored credential.", "credentials.totp")(node)
}

func (t rpcTool) Spec() component.ToolSpec {
	return component.ToolSpec{Name: t.name, Description: t.description}
}

func (t rpcTool) Invoke(ctx context.Context, _ *state.State, args json.RawMessage) (interface{}, error) {
	var params map[string]interface{}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, fmt.Errorf("%s: decode args: %w", t.name, err)
		}
	}
	result, err := t.api.Call(ctx, t.method, params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t.name, err)
	}
	return result, nil
}
