package registry

import "sort"

// DescriptorBuilder assembles a HandlerDescriptor field by field,
// standing in for the language-native annotation/decorator surface
// named in §4.3 ("via language-native annotation/decorator or a
// builder"). Plugins construct one per exposed method.
type DescriptorBuilder struct {
	d HandlerDescriptor
}

// NewTool starts a tool descriptor.
func NewTool(name string) *DescriptorBuilder {
	return &DescriptorBuilder{d: HandlerDescriptor{Kind: KindTool, Name: name}}
}

// NewResource starts a resource descriptor.
func NewResource(name, uriPattern string) *DescriptorBuilder {
	return &DescriptorBuilder{d: HandlerDescriptor{Kind: KindResource, Name: name, URIPattern: uriPattern}}
}

// NewPrompt starts a prompt descriptor.
func NewPrompt(name string) *DescriptorBuilder {
	return &DescriptorBuilder{d: HandlerDescriptor{Kind: KindPrompt, Name: name}}
}

func (b *DescriptorBuilder) Description(desc string) *DescriptorBuilder {
	b.d.Description = desc
	return b
}

func (b *DescriptorBuilder) MIMEType(mime string) *DescriptorBuilder {
	b.d.MIMEType = mime
	return b
}

func (b *DescriptorBuilder) Param(p InputParam) *DescriptorBuilder {
	p.Position = len(b.d.Params)
	b.d.Params = append(b.d.Params, p)
	return b
}

func (b *DescriptorBuilder) Middleware(entries ...MiddlewareEntry) *DescriptorBuilder {
	b.d.Middleware = append(b.d.Middleware, entries...)
	return b
}

func (b *DescriptorBuilder) ErrorHandler(entries ...ErrorHandlerEntry) *DescriptorBuilder {
	b.d.ErrorHandlers = append(b.d.ErrorHandlers, entries...)
	return b
}

func (b *DescriptorBuilder) Invoke(fn InvokeFunc) *DescriptorBuilder {
	b.d.Invoke = fn
	return b
}

// Build sorts the middleware and error-handler lists by ascending
// priority with a stable sort (preserving list index as the tie
// break, per §3/§4.3) and returns the finished descriptor.
func (b *DescriptorBuilder) Build() *HandlerDescriptor {
	sort.SliceStable(b.d.Middleware, func(i, j int) bool {
		return b.d.Middleware[i].Priority < b.d.Middleware[j].Priority
	})
	sort.SliceStable(b.d.ErrorHandlers, func(i, j int) bool {
		return b.d.ErrorHandlers[i].Priority < b.d.ErrorHandlers[j].Priority
	})
	d := b.d
	return &d
}
