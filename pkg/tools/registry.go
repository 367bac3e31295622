package tools

import (
	"fmt"
	"strings"
	"sync"

	"chartsmith/pkg/editor"
)

// Tool name constants.
const (
	ToolTextEditor = "text_editor"
)

// WorkspaceContext contains workspace-specific configuration for tool creation.
type WorkspaceContext struct {
	Backend     editor.FileMutationBackend
	WorkspaceID string
}

// ToolFactory creates a tool instance configured for a specific workspace context.
type ToolFactory func(ctx WorkspaceContext) (Tool, error)

// toolDescriptor contains the factory and metadata for a tool.
type toolDescriptor struct {
	meta    ToolMeta
	factory ToolFactory
}

// immutableRegistry is the global, read-only tool registry.
type immutableRegistry struct {
	mu     sync.RWMutex
	sealed bool
	tools  map[string]toolDescriptor
}

//nolint:gochecknoglobals // Factory pattern requires global registry
var globalRegistry = &immutableRegistry{
	tools: make(map[string]toolDescriptor),
}

// Register adds a tool factory to the global registry.
// Panics if called after the registry is sealed.
func Register(name string, factory ToolFactory, meta *ToolMeta) {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()

	if globalRegistry.sealed {
		panic(fmt.Sprintf("tool registry sealed - cannot register tool '%s'", name))
	}

	globalRegistry.tools[name] = toolDescriptor{
		meta:    *meta,
		factory: factory,
	}
}

// Seal prevents further tool registrations.
// Called automatically when the first ToolProvider is created.
func Seal() {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()
	globalRegistry.sealed = true
}

// ListTools returns metadata for all registered tools.
func ListTools() []ToolMeta {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	result := make([]ToolMeta, 0, len(globalRegistry.tools))
	for _, desc := range globalRegistry.tools {
		result = append(result, desc.meta)
	}
	return result
}

// ToolProvider creates and manages tool instances for one workspace context.
type ToolProvider struct {
	ctx   WorkspaceContext
	tools map[string]Tool
	mu    sync.Mutex
}

// NewProvider creates a new ToolProvider for the given workspace context.
// Automatically seals the global registry on first use.
func NewProvider(ctx WorkspaceContext) *ToolProvider {
	Seal()

	return &ToolProvider{
		ctx:   ctx,
		tools: make(map[string]Tool),
	}
}

// Get retrieves a tool instance, creating it lazily if needed.
func (p *ToolProvider) Get(name string) (Tool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if tool, ok := p.tools[name]; ok {
		return tool, nil
	}

	globalRegistry.mu.RLock()
	desc, exists := globalRegistry.tools[name]
	globalRegistry.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("tool '%s' not registered", name)
	}

	tool, err := desc.factory(p.ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool '%s': %w", name, err)
	}

	p.tools[name] = tool
	return tool, nil
}

// Must is like Get but panics on error. Use for tools that must exist.
func (p *ToolProvider) Must(name string) Tool {
	tool, err := p.Get(name)
	if err != nil {
		panic(err)
	}
	return tool
}

// Definitions returns LLM-facing definitions for all registered tools.
func (p *ToolProvider) Definitions() []ToolDefinition {
	metas := ListTools()
	defs := make([]ToolDefinition, 0, len(metas))
	for i := range metas {
		defs = append(defs, ToolDefinition{
			Name:        metas[i].Name,
			Description: metas[i].Description,
			InputSchema: metas[i].InputSchema,
		})
	}
	return defs
}

// GenerateToolDocumentation creates markdown documentation for the registered tools.
func GenerateToolDocumentation() string {
	metas := ListTools()
	if len(metas) == 0 {
		return "No tools available"
	}

	var doc strings.Builder
	doc.WriteString("## Available Tools\n\n")
	for i := range metas {
		doc.WriteString(fmt.Sprintf("- **%s** - %s\n", metas[i].Name, metas[i].Description))
	}
	return doc.String()
}

func createTextEditorTool(ctx WorkspaceContext) (Tool, error) {
	if ctx.Backend == nil {
		return nil, fmt.Errorf("text editor tool requires a mutation backend")
	}
	return NewTextEditorTool(ctx.Backend, ctx.WorkspaceID), nil
}

//nolint:gochecknoinits // Factory pattern requires init() for tool registration
func init() {
	Register(ToolTextEditor, createTextEditorTool, &ToolMeta{
		Name:        ToolTextEditor,
		Description: "View, create, and edit chart files in the workspace",
		InputSchema: textEditorSchema(),
	})
}
