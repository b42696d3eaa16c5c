// Package dispatch turns inbound node messages into remote platform calls.
//
// One Dispatcher serves one node instance. It resolves the operation,
// merges node configuration over the payload, validates the required fields
// and issues the call asynchronously on the family's current client. Results
// and remote errors are emitted as outbound messages; validation problems go
// to the node's error channel.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"watsoniot-bridge/go-backend/internal/operations"
	"watsoniot-bridge/go-backend/internal/status"
	"watsoniot-bridge/go-backend/internal/wiotp"
)

// Message is both the inbound and the outbound envelope.
type Message struct {
	ID        string `json:"_msgid,omitempty"`
	Operation string `json:"operation,omitempty"`
	Payload   any    `json:"payload"`
}

// ClientSource leases the family's current client. The lease keeps the
// handle usable until release is called.
type ClientSource interface {
	Acquire() (client wiotp.Client, release func(), err error)
}

// Output receives what a node emits.
type Output interface {
	Send(nodeID string, out Message)
	Error(nodeID string, in Message, err error)
}

// Observer receives one sample per handled message.
type Observer interface {
	ObserveRequest(family, operation, outcome string, elapsed time.Duration)
}

const (
	OutcomeSuccess       = "success"
	OutcomeRemoteError   = "remote_error"
	OutcomeInvalid       = "validation_error"
	OutcomeUnknown       = "unknown_operation"
	OutcomeUninitialized = "uninitialized"
)

type Options struct {
	Node     NodeConfig
	Sessions ClientSource
	Status   *status.Reporter
	Output   Output
	Observer Observer
	Logger   *slog.Logger

	DecodePayload      PayloadDecodePolicy
	NormalizeOperation OperationNamePolicy
	NewID              func() string
}

type Dispatcher struct {
	node     NodeConfig
	table    operations.Table
	sessions ClientSource
	status   *status.Reporter
	output   Output
	observer Observer
	logger   *slog.Logger

	decode    PayloadDecodePolicy
	normalize OperationNamePolicy
	newID     func() string

	wg sync.WaitGroup
}

func New(opts Options) (*Dispatcher, error) {
	table, ok := operations.For(opts.Node.Family)
	if !ok {
		return nil, errors.New("dispatch: unknown node family " + string(opts.Node.Family))
	}
	if opts.Sessions == nil {
		return nil, errors.New("dispatch: session source is required")
	}
	if opts.Output == nil {
		return nil, errors.New("dispatch: output is required")
	}
	if opts.Status == nil {
		opts.Status = status.NewReporter(opts.Node.ID, status.Options{})
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.DecodePayload == nil {
		opts.DecodePayload = LenientJSON
	}
	if opts.NormalizeOperation == nil {
		opts.NormalizeOperation = FoldCase
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Dispatcher{
		node:      opts.Node,
		table:     table,
		sessions:  opts.Sessions,
		status:    opts.Status,
		output:    opts.Output,
		observer:  opts.Observer,
		logger:    opts.Logger.With("component", "dispatch", "node_id", opts.Node.ID, "family", string(opts.Node.Family)),
		decode:    opts.DecodePayload,
		normalize: opts.NormalizeOperation,
		newID:     opts.NewID,
	}, nil
}

func (d *Dispatcher) Node() NodeConfig { return d.node }

// Handle accepts one inbound message and returns its correlation id. A
// non-nil error means the message stopped before any remote call; it has
// already been reported on the node's error channel.
func (d *Dispatcher) Handle(ctx context.Context, msg Message) (string, error) {
	if msg.ID == "" {
		msg.ID = d.newID()
	}
	started := time.Now()
	d.status.Begin()

	name := msg.Operation
	if name == "" {
		name = d.node.Method
	}
	name = d.normalize(name)
	msg.Payload = d.decode(msg.Payload)

	spec, ok := d.table.Lookup(name)
	if !ok {
		err := &operations.UnknownOperationError{Family: d.node.Family, Operation: name}
		d.abort(msg, name, OutcomeUnknown, started, err)
		return msg.ID, err
	}

	args := extractArgs(d.node.Family, d.node, msg.Payload)
	if err := spec.Validate(args); err != nil {
		d.abort(msg, name, OutcomeInvalid, started, err)
		return msg.ID, err
	}

	client, release, err := d.sessions.Acquire()
	if err != nil {
		d.status.Fail()
		d.output.Error(d.node.ID, msg, err)
		d.observe(name, OutcomeUninitialized, started)
		d.logger.Warn("request rejected", "operation", name, "correlation_id", msg.ID, "error", err.Error())
		return msg.ID, err
	}

	callCtx := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer release()
		d.call(callCtx, client, spec, args, msg.ID, started)
	}()
	return msg.ID, nil
}

func (d *Dispatcher) call(ctx context.Context, client wiotp.Client, spec operations.Spec, args operations.Args, msgID string, started time.Time) {
	result, err := spec.Invoke(ctx, client, args)
	if err != nil {
		d.output.Send(d.node.ID, Message{ID: msgID, Payload: wiotp.ErrorPayload(err)})
		d.status.Fail()
		d.observe(spec.Name, OutcomeRemoteError, started)
		d.logger.Warn("remote call failed",
			"operation", spec.Name,
			"correlation_id", msgID,
			"latency_ms", time.Since(started).Milliseconds(),
			"error", err.Error(),
		)
		return
	}
	d.output.Send(d.node.ID, Message{ID: msgID, Payload: result})
	d.status.Succeed()
	d.observe(spec.Name, OutcomeSuccess, started)
	d.logger.Info("remote call completed",
		"operation", spec.Name,
		"correlation_id", msgID,
		"latency_ms", time.Since(started).Milliseconds(),
	)
}

func (d *Dispatcher) abort(msg Message, name, outcome string, started time.Time, err error) {
	d.output.Error(d.node.ID, msg, err)
	d.status.Abort()
	label := name
	if outcome == OutcomeUnknown {
		// keep caller-chosen names out of metric labels
		label = "unknown"
	}
	d.observe(label, outcome, started)
	d.logger.Info("request aborted", "operation", name, "correlation_id", msg.ID, "error", err.Error())
}

func (d *Dispatcher) observe(operation, outcome string, started time.Time) {
	if d.observer != nil {
		d.observer.ObserveRequest(string(d.node.Family), operation, outcome, time.Since(started))
	}
}

// Drain waits for in-flight remote calls or for ctx to end.
func (d *Dispatcher) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains in-flight calls and stops the status timer.
func (d *Dispatcher) Close(ctx context.Context) error {
	err := d.Drain(ctx)
	d.status.Stop()
	return err
}
