// Package transport binds the Dispatcher and Registry to the MCP
// protocol surface (§6) over stdio or HTTP, using
// github.com/mark3labs/mcp-go as the black-box JSON-RPC transport (§1).
//
// Builds the same mcpserver.MCPServer construction and systemd
// socket-activation check (via github.com/coreos/go-systemd/v22/activation)
// an aggregating MCP server uses, and the same active-item diffing idiom
// for resynchronizing tools/resources/prompts as plugins load and unload.
package transport

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/activation"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"sker/internal/config"
	"sker/internal/dispatcher"
	"sker/internal/errchain"
	"sker/internal/registry"
)

// Logger is the narrow logging surface this package needs.
type Logger interface {
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(err error, format string, args ...any)
	Debug(format string, args ...any)
}

// Server owns the mcp-go server instance and whichever transport
// listener(s) are currently bound to it.
type Server struct {
	name, version string
	disp          *dispatcher.Dispatcher
	reg           *registry.Registry
	logger        Logger

	mcp         *mcpserver.MCPServer
	unsubscribe func()

	mu          sync.Mutex
	activeTools map[string]bool
	activeRes   map[string]bool
	activePrm   map[string]bool

	stdio      *mcpserver.StdioServer
	stdioDone  chan struct{}
	httpServes []*http.Server
}

// NewServer builds the mcp-go server and wires the Registry's change
// notifications so tool/resource/prompt lists stay in sync with plugin
// load/unload, but does not bind any transport listener yet.
func NewServer(name, version string, disp *dispatcher.Dispatcher, reg *registry.Registry, logger Logger) *Server {
	s := &Server{
		name:        name,
		version:     version,
		disp:        disp,
		reg:         reg,
		logger:      logger,
		activeTools: map[string]bool{},
		activeRes:   map[string]bool{},
		activePrm:   map[string]bool{},
	}
	s.mcp = mcpserver.NewMCPServer(
		name, version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithPromptCapabilities(true),
	)
	s.resync()
	s.unsubscribe = reg.Subscribe(s.resync)
	return s
}

// resync diffs the registry's current contents against what was last
// published and adds/removes the difference, the same
// update-capabilities/remove-obsolete/add-new split an aggregating MCP
// server uses to keep its exposed surface in sync with its backends.
func (s *Server) resync() {
	snap := s.reg.Snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()

	wantTools := map[string]bool{}
	var toolsToAdd []mcpserver.ServerTool
	for _, d := range snap.Tools {
		wantTools[d.Name] = true
		if !s.activeTools[d.Name] {
			toolsToAdd = append(toolsToAdd, mcpserver.ServerTool{Tool: toMCPTool(d), Handler: s.toolHandler(d.Name)})
		}
	}
	var toolsToRemove []string
	for name := range s.activeTools {
		if !wantTools[name] {
			toolsToRemove = append(toolsToRemove, name)
		}
	}
	if len(toolsToRemove) > 0 {
		s.mcp.DeleteTools(toolsToRemove...)
	}
	if len(toolsToAdd) > 0 {
		s.mcp.AddTools(toolsToAdd...)
	}
	s.activeTools = wantTools

	wantRes := map[string]bool{}
	var resToAdd []mcpserver.ServerResource
	for _, d := range snap.Resources {
		wantRes[d.URIPattern] = true
		if !s.activeRes[d.URIPattern] {
			resToAdd = append(resToAdd, mcpserver.ServerResource{Resource: toMCPResource(d), Handler: s.resourceHandler(d.Name)})
		}
	}
	for uri := range s.activeRes {
		if !wantRes[uri] {
			s.mcp.RemoveResource(uri)
		}
	}
	if len(resToAdd) > 0 {
		s.mcp.AddResources(resToAdd...)
	}
	s.activeRes = wantRes

	wantPrm := map[string]bool{}
	var prmToAdd []mcpserver.ServerPrompt
	for _, d := range snap.Prompts {
		wantPrm[d.Name] = true
		if !s.activePrm[d.Name] {
			prmToAdd = append(prmToAdd, mcpserver.ServerPrompt{Prompt: toMCPPrompt(d), Handler: s.promptHandler(d.Name)})
		}
	}
	var prmToRemove []string
	for name := range s.activePrm {
		if !wantPrm[name] {
			prmToRemove = append(prmToRemove, name)
		}
	}
	if len(prmToRemove) > 0 {
		s.mcp.DeletePrompts(prmToRemove...)
	}
	if len(prmToAdd) > 0 {
		s.mcp.AddPrompts(prmToAdd...)
	}
	s.activePrm = wantPrm
}

func (s *Server) toolHandler(name string) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := map[string]any{}
		if m, ok := req.Params.Arguments.(map[string]any); ok {
			args = m
		}
		result, err := s.disp.Dispatch(ctx, registry.KindTool, name, args, req, nil)
		if err != nil {
			return nil, mapBareError(err)
		}
		if resp, ok := result.(errchain.Response); ok && resp.Error {
			if isProtocolCode(resp.Code) {
				return nil, mapErrorResponse(resp)
			}
			return mcp.NewToolResultError(resp.Message), nil
		}
		return toCallToolResult(result), nil
	}
}

func (s *Server) resourceHandler(name string) func(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		args := map[string]any{"uri": req.Params.URI}
		desc, ok := s.reg.Lookup(registry.KindResource, name)
		if !ok {
			return nil, mapErrorResponse(errchain.Response{Error: true, Code: errchain.CodeMethodNotFound, Message: "resource no longer available"})
		}
		result, err := s.disp.Dispatch(ctx, registry.KindResource, name, args, req, nil)
		if err != nil {
			return nil, mapBareError(err)
		}
		if resp, ok := result.(errchain.Response); ok && resp.Error {
			return nil, mapErrorResponse(resp)
		}
		return toResourceContents(desc, result), nil
	}
}

func (s *Server) promptHandler(name string) func(context.Context, mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return func(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		args := map[string]any{}
		for k, v := range req.Params.Arguments {
			args[k] = v
		}
		desc, ok := s.reg.Lookup(registry.KindPrompt, name)
		if !ok {
			return nil, mapErrorResponse(errchain.Response{Error: true, Code: errchain.CodeMethodNotFound, Message: "prompt no longer available"})
		}
		result, err := s.disp.Dispatch(ctx, registry.KindPrompt, name, args, req, nil)
		if err != nil {
			return nil, mapBareError(err)
		}
		if resp, ok := result.(errchain.Response); ok && resp.Error {
			return nil, mapErrorResponse(resp)
		}
		return toPromptResult(desc, result), nil
	}
}

// Start binds the configured transport (stdio or http) to the mcp-go
// server. For http it checks for systemd socket activation first,
// falling back to a plain listener on cfg.HTTP.Host:cfg.HTTP.Port.
func (s *Server) Start(ctx context.Context, cfg config.TransportConfig) error {
	switch cfg.Type {
	case config.TransportHTTP:
		return s.startHTTP(ctx, cfg.HTTP)
	case config.TransportStdio, "":
		return s.startStdio(ctx)
	default:
		return fmt.Errorf("transport: unknown type %q", cfg.Type)
	}
}

func (s *Server) startStdio(ctx context.Context) error {
	s.stdio = mcpserver.NewStdioServer(s.mcp)
	s.stdioDone = make(chan struct{})
	go func() {
		defer close(s.stdioDone)
		if err := s.stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil {
			if s.logger != nil {
				s.logger.Error(err, "transport: stdio server exited")
			}
		}
	}()
	return nil
}

func (s *Server) startHTTP(ctx context.Context, cfg config.HTTPTransportConfig) error {
	httpSrv := mcpserver.NewStreamableHTTPServer(s.mcp)
	handler := s.withHealthCheck(httpSrv)
	if cfg.CORS {
		handler = withCORS(handler, cfg.AllowedOrigins)
	}

	listeners, err := systemdListeners()
	if err != nil && s.logger != nil {
		s.logger.Warn("transport: systemd socket activation probe failed: %v", err)
	}

	if len(listeners) > 0 {
		if s.logger != nil {
			s.logger.Info("transport: using %d systemd-activated listener(s)", len(listeners))
		}
		for i, l := range listeners {
			srv := &http.Server{Handler: handler}
			s.httpServes = append(s.httpServes, srv)
			go s.serve(srv, l, i)
		}
		return nil
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	srv := &http.Server{Addr: addr, Handler: handler}
	if cfg.RequestTimeoutMS > 0 {
		srv.ReadHeaderTimeout = time.Duration(cfg.RequestTimeoutMS) * time.Millisecond
	}
	s.httpServes = append(s.httpServes, srv)
	if s.logger != nil {
		s.logger.Info("transport: starting http server on %s", addr)
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if s.logger != nil {
				s.logger.Error(err, "transport: http server error")
			}
		}
	}()
	return nil
}

func (s *Server) serve(srv *http.Server, l net.Listener, index int) {
	if err := srv.Serve(l); err != nil && err != http.ErrServerClosed {
		if s.logger != nil {
			s.logger.Error(err, "transport: listener %d serve error", index)
		}
	}
}

func (s *Server) withHealthCheck(mcpHandler http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("/", mcpHandler)
	return mux
}

// withCORS allows the configured origins (or "*" when none are listed),
// the way an HTTP mux in front of a browser-facing MCP server needs to.
func withCORS(next http.Handler, allowedOrigins []string) http.Handler {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (allowAll || allowed[origin]) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Mcp-Session-Id")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func systemdListeners() ([]net.Listener, error) {
	byName, err := activation.ListenersWithNames()
	if err != nil {
		return nil, err
	}
	var out []net.Listener
	for _, ls := range byName {
		out = append(out, ls...)
	}
	return out, nil
}

// Stop shuts down whichever transport listener(s) are bound and
// unsubscribes from registry change notifications.
func (s *Server) Stop(ctx context.Context) error {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var errs []error
	for _, srv := range s.httpServes {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
	}
	s.httpServes = nil

	if s.stdioDone != nil {
		select {
		case <-s.stdioDone:
		case <-shutdownCtx.Done():
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("transport: shutdown errors: %v", errs)
	}
	return nil
}
