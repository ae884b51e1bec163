package command

import (
	"errors"

	"github.com/getpup/pupkernel/es"
)

// ErrAggregateTypeRestriction indicates a command applied to an aggregate
// whose current state is not the one the command requires.
var ErrAggregateTypeRestriction = errors.New("aggregate type restriction violated")

// Handler is the strategy for one command type. PartitionKeys resolves which
// stream the command targets. Handle decides which event, if any, the command
// produces. Returning a nil payload and nil error is a no-op.
//
// Handle may call Context.Append to emit several events; a non-nil returned
// payload is appended after them.
type Handler[C any] interface {
	PartitionKeys(cmd C) es.PartitionKeys
	Handle(cmd C, c *Context) (es.EventPayload, error)
}

// HandlerFuncs adapts two plain functions to a Handler.
type HandlerFuncs[C any] struct {
	Resolve    func(cmd C) es.PartitionKeys
	HandleFunc func(cmd C, c *Context) (es.EventPayload, error)
}

// PartitionKeys implements Handler.
func (h HandlerFuncs[C]) PartitionKeys(cmd C) es.PartitionKeys {
	return h.Resolve(cmd)
}

// Handle implements Handler.
func (h HandlerFuncs[C]) Handle(cmd C, c *Context) (es.EventPayload, error) {
	return h.HandleFunc(cmd, c)
}

// Command is a self-describing command: it names its projector, its target
// partition and its own handling logic.
type Command interface {
	Projector() es.Projector
	PartitionKeys() es.PartitionKeys
	Handle(c *Context) (es.EventPayload, error)
}

// AggregateRestricted is implemented by commands that only apply to an
// aggregate in a specific state. The executor rejects the command with
// ErrAggregateTypeRestriction before running the handler when the loaded
// payload's AggregateType differs.
type AggregateRestricted interface {
	RequiredAggregateType() string
}

type selfHandler struct{}

func (selfHandler) PartitionKeys(cmd Command) es.PartitionKeys {
	return cmd.PartitionKeys()
}

func (selfHandler) Handle(cmd Command, c *Context) (es.EventPayload, error) {
	return cmd.Handle(c)
}
