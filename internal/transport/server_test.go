package transport

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sker/internal/dispatcher"
	"sker/internal/errchain"
	"sker/internal/registry"
)

type testLogger struct{}

func (testLogger) Info(format string, args ...any)          {}
func (testLogger) Warn(format string, args ...any)          {}
func (testLogger) Error(err error, format string, args ...any) {}
func (testLogger) Debug(format string, args ...any)         {}

func greetDescriptor() *registry.HandlerDescriptor {
	return registry.NewTool("greet").
		Param(registry.InputParam{Name: "name", Schema: registry.Schema{Type: "string"}, Required: true}).
		Invoke(func(ctx context.Context, args map[string]any) (any, error) {
			return "hi " + args["name"].(string), nil
		}).
		Build()
}

func newTestServer(t *testing.T) (*Server, *registry.Registry) {
	reg := registry.New()
	disp := dispatcher.New(reg, dispatcher.Config{}, testLogger{})
	srv := NewServer("sker-test", "0.0.0", disp, reg, testLogger{})
	return srv, reg
}

func TestToolHandlerDispatchesThroughRegisteredDescriptor(t *testing.T) {
	srv, reg := newTestServer(t)
	require.NoError(t, reg.Install("plugin-a", []*registry.HandlerDescriptor{greetDescriptor()}))

	handler := srv.toolHandler("greet")
	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]any{"name": "ada"}

	result, err := handler(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	assert.Equal(t, "hi ada", text.Text)
}

func TestToolHandlerMapsMethodNotFoundAfterUnregister(t *testing.T) {
	srv, reg := newTestServer(t)
	require.NoError(t, reg.Install("plugin-a", []*registry.HandlerDescriptor{greetDescriptor()}))
	reg.UninstallAllFor("plugin-a")

	handler := srv.toolHandler("greet")
	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]any{"name": "ada"}

	_, err := handler(context.Background(), req)
	require.Error(t, err)
	pe, ok := err.(*protocolError)
	require.True(t, ok)
	assert.Equal(t, jsonrpcMethodNotFound, pe.Code())
}

func TestResyncAddsAndRemovesToolsAsRegistryChanges(t *testing.T) {
	srv, reg := newTestServer(t)

	require.NoError(t, reg.Install("plugin-a", []*registry.HandlerDescriptor{greetDescriptor()}))
	srv.mu.Lock()
	_, tracked := srv.activeTools["greet"]
	srv.mu.Unlock()
	assert.True(t, tracked, "resync should track a newly installed tool")

	reg.UninstallAllFor("plugin-a")
	srv.mu.Lock()
	_, stillTracked := srv.activeTools["greet"]
	srv.mu.Unlock()
	assert.False(t, stillTracked, "resync should drop an uninstalled tool")
}

func protocolCodedDescriptor(code string) *registry.HandlerDescriptor {
	return registry.NewTool("gated").
		Invoke(func(ctx context.Context, args map[string]any) (any, error) {
			return errchain.Response{Error: true, Code: code, Message: "denied"}, nil
		}).
		Build()
}

func TestToolHandlerRoutesProtocolCodedResponseAsGenuineError(t *testing.T) {
	srv, reg := newTestServer(t)
	require.NoError(t, reg.Install("plugin-a", []*registry.HandlerDescriptor{protocolCodedDescriptor(errchain.CodePermissionDenied)}))

	handler := srv.toolHandler("gated")
	_, err := handler(context.Background(), mcp.CallToolRequest{})
	require.Error(t, err)
	pe, ok := err.(*protocolError)
	require.True(t, ok)
	assert.Equal(t, jsonrpcPermissionDenied, pe.Code())
}

func TestToolHandlerKeepsBusinessErrorAsToolResultContent(t *testing.T) {
	srv, reg := newTestServer(t)
	require.NoError(t, reg.Install("plugin-a", []*registry.HandlerDescriptor{protocolCodedDescriptor(errchain.CodePluginConflict)}))

	handler := srv.toolHandler("gated")
	result, err := handler(context.Background(), mcp.CallToolRequest{})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.IsError)
}

func TestMapErrorResponseClassifiesValidationAsInvalidParams(t *testing.T) {
	pe := mapErrorResponse(errchain.Response{Error: true, Code: errchain.CodeValidationError, Message: "bad arg"})
	assert.Equal(t, jsonrpcInvalidParams, pe.Code())
}

func TestMapBareErrorDefaultsToInternalError(t *testing.T) {
	pe := mapBareError(&codedErr{code: "whatever"})
	assert.Equal(t, jsonrpcInternalError, pe.Code())
}

type codedErr struct{ code string }

func (e *codedErr) Error() string { return e.code }
func (e *codedErr) Code() string  { return e.code }
