package pipeline

import (
	"fmt"
	"log"
)

// Context carries a message through the processing chain. Processors
// receive it by value and return a replacement, so a failing stage can
// never corrupt what earlier stages produced.
type Context struct {
	Content []byte
	Mailbox string
	User    string
}

// Processor is one message-processing stage. Returning an error skips
// the stage; the chain continues with the context it received.
type Processor interface {
	Name() string
	Process(ctx Context) (Context, error)
}

// Pipeline runs processors in registration order over every appended
// message. A stage failure is logged and contained; it never blocks
// delivery.
type Pipeline struct {
	processors []Processor
	logger     *log.Logger
}

// New creates an empty pipeline.
func New(logger *log.Logger) *Pipeline {
	return &Pipeline{logger: logger}
}

// Add appends a processor to the end of the chain.
func (p *Pipeline) Add(proc Processor) {
	p.processors = append(p.processors, proc)
}

// Len reports the number of configured stages.
func (p *Pipeline) Len() int {
	return len(p.processors)
}

// Run passes the context through every stage and returns the final
// result. Stage errors are logged; the context from before the failed
// stage carries forward.
func (p *Pipeline) Run(ctx Context) Context {
	for _, proc := range p.processors {
		out, err := proc.Process(ctx)
		if err != nil {
			if p.logger != nil {
				p.logger.Printf("Pipeline stage %s failed for %s/%s: %v",
					proc.Name(), ctx.User, ctx.Mailbox, err)
			}
			continue
		}
		ctx = out
	}
	return ctx
}

// Factory builds a processor from its config parameters.
type Factory func(params map[string]string) (Processor, error)

var factories = map[string]Factory{}

// RegisterFactory makes a processor available under a config name.
func RegisterFactory(name string, f Factory) {
	factories[name] = f
}

// Build constructs a processor by config name.
func Build(name string, params map[string]string) (Processor, error) {
	f, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown processor %q", name)
	}
	return f(params)
}
