package transport

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"sker/internal/registry"
)

// toMCPInputSchema derives an mcp.ToolInputSchema from a descriptor's
// per-parameter metadata, turning each parameter's name/type/required
// flag into the corresponding JSON-Schema-shaped property.
func toMCPInputSchema(params []registry.InputParam) mcp.ToolInputSchema {
	properties := make(map[string]any, len(params))
	var required []string
	for _, p := range params {
		prop := map[string]any{"type": p.Schema.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Schema.Enum) > 0 {
			prop["enum"] = p.Schema.Enum
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return mcp.ToolInputSchema{Type: "object", Properties: properties, Required: required}
}

func toMCPTool(d *registry.HandlerDescriptor) mcp.Tool {
	return mcp.Tool{
		Name:        d.Name,
		Description: d.Description,
		InputSchema: toMCPInputSchema(d.Params),
	}
}

func toMCPPrompt(d *registry.HandlerDescriptor) mcp.Prompt {
	args := make([]mcp.PromptArgument, 0, len(d.Params))
	for _, p := range d.Params {
		args = append(args, mcp.PromptArgument{
			Name:        p.Name,
			Description: p.Description,
			Required:    p.Required,
		})
	}
	return mcp.Prompt{
		Name:        d.Name,
		Description: d.Description,
		Arguments:   args,
	}
}

func toMCPResource(d *registry.HandlerDescriptor) mcp.Resource {
	return mcp.Resource{
		URI:         d.URIPattern,
		Name:        d.Name,
		Description: d.Description,
		MIMEType:    d.MIMEType,
	}
}

// toCallToolResult converts an invoke result into tool-call content:
// strings pass through as text content, anything else is marshaled to
// JSON text.
func toCallToolResult(result any) *mcp.CallToolResult {
	switch v := result.(type) {
	case string:
		return mcp.NewToolResultText(v)
	case *mcp.CallToolResult:
		return v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return mcp.NewToolResultError(err.Error())
		}
		return mcp.NewToolResultText(string(data))
	}
}

func toResourceContents(d *registry.HandlerDescriptor, result any) []mcp.ResourceContents {
	mimeType := d.MIMEType
	if mimeType == "" {
		mimeType = "text/plain"
	}
	switch v := result.(type) {
	case []mcp.ResourceContents:
		return v
	case string:
		return []mcp.ResourceContents{mcp.TextResourceContents{URI: d.URIPattern, MIMEType: mimeType, Text: v}}
	default:
		data, err := json.Marshal(v)
		if err != nil {
			data = []byte(err.Error())
		}
		return []mcp.ResourceContents{mcp.TextResourceContents{URI: d.URIPattern, MIMEType: "application/json", Text: string(data)}}
	}
}

func toPromptResult(d *registry.HandlerDescriptor, result any) *mcp.GetPromptResult {
	switch v := result.(type) {
	case *mcp.GetPromptResult:
		return v
	case string:
		return &mcp.GetPromptResult{
			Description: d.Description,
			Messages: []mcp.PromptMessage{
				{Role: mcp.RoleAssistant, Content: mcp.NewTextContent(v)},
			},
		}
	default:
		data, err := json.Marshal(v)
		if err != nil {
			data = []byte(err.Error())
		}
		return &mcp.GetPromptResult{
			Description: d.Description,
			Messages: []mcp.PromptMessage{
				{Role: mcp.RoleAssistant, Content: mcp.NewTextContent(string(data))},
			},
		}
	}
}
