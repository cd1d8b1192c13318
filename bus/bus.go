package bus

import (
	"log"
	"time"
)

// Capacity of the controller's inbound queue (spec §5: "capacity ≈ 1024").
const InboundCapacity = 1024

// subscriberCapacity bounds each telemetry subscriber's outbound queue.
// On overflow the envelope is dropped and logged rather than blocking the
// publisher; the subscriber stays registered.
const subscriberCapacity = 256

// readerRequest asks the controller goroutine to add or remove a
// telemetry subscriber. Registration is routed through its own channel
// rather than In, mirroring original_source/src/controller/mod.rs's
// ControllerPort::add_rx: a web client's per-connection thread can call
// Bus.Register/Unregister from outside the controller goroutine, but the
// registry map itself — like every other piece of controller state — is
// only ever touched by the single owner, here serviced alongside Run's
// main select loop.
type readerRequest struct {
	register   chan<- *Subscriber // non-nil: create a subscriber, reply here
	unregister *Subscriber        // non-nil: remove this subscriber
}

// Bus is the controller's single inbound queue plus its telemetry
// fan-out. The controller goroutine is the only reader of In; every
// other goroutine in the process only ever sends to In or receives from
// a Subscriber handed back by Register.
type Bus struct {
	In       chan Envelope
	requests chan readerRequest
	logger   *log.Logger
}

func New(logger *log.Logger) *Bus {
	return &Bus{
		In:       make(chan Envelope, InboundCapacity),
		requests: make(chan readerRequest),
		logger:   logger,
	}
}

// Send enqueues a message with the current time as its bus timestamp.
// Returns false (and logs) if the inbound queue is full; the message is
// then dropped. No caller closes the sending connection on false: the web
// session and the controller's auxiliary-source poll ignore the result.
func (b *Bus) Send(msg Message) bool {
	env := Envelope{At: time.Now(), Message: msg}
	select {
	case b.In <- env:
		return true
	default:
		b.logger.Printf("inbound queue overflow, dropping %T", msg)
		return false
	}
}

// Subscriber is a registered telemetry sink. The controller loop calls
// Publish once per received/ticked message; Subscriber only ever reads.
type Subscriber struct {
	ch     chan Envelope
	closed chan struct{}
}

func (s *Subscriber) C() <-chan Envelope { return s.ch }

// Register asks the controller goroutine to add a new telemetry
// subscriber and blocks for its reply. Safe to call from any goroutine
// (e.g. a web client's connection handler); the registry map it touches
// under the hood is only ever mutated by the controller loop servicing
// Requests().
func (b *Bus) Register() *Subscriber {
	resp := make(chan *Subscriber, 1)
	b.requests <- readerRequest{register: resp}
	return <-resp
}

// Unregister asks the controller goroutine to remove a telemetry
// subscriber. Safe to call from any goroutine.
func (b *Bus) Unregister(s *Subscriber) {
	b.requests <- readerRequest{unregister: s}
}

// Requests exposes the registration-request channel for the controller's
// Run loop to service alongside its other select cases.
func (b *Bus) Requests() <-chan readerRequest { return b.requests }

// registry is private controller-loop state; see Registry.Publish and
// Registry.Service.
type registry struct {
	subs map[*Subscriber]struct{}
}

func newRegistry() *registry { return &registry{subs: map[*Subscriber]struct{}{}} }

func (r *registry) add() *Subscriber {
	s := &Subscriber{ch: make(chan Envelope, subscriberCapacity)}
	r.subs[s] = struct{}{}
	return s
}

func (r *registry) remove(s *Subscriber) {
	if _, ok := r.subs[s]; ok {
		delete(r.subs, s)
		close(s.ch)
	}
}

// publish fans an envelope out to every live subscriber, best-effort: a
// slow subscriber's queue filling up costs that subscriber a dropped
// telemetry frame, never the controller loop a stall (spec §5: "best-
// effort; overflow logged").
func (r *registry) publish(env Envelope, logger *log.Logger) {
	for s := range r.subs {
		select {
		case s.ch <- env:
		default:
			logger.Printf("telemetry subscriber overflow, dropping %T", env.Message)
		}
	}
}

// Registry exposes the controller-owned subscriber set. The controller
// package embeds one alongside its own dispatch loop; kept here so the
// fan-out bookkeeping (bounded queues, best-effort publish) lives next to
// the envelope type it fans out.
type Registry struct {
	reg    *registry
	logger *log.Logger
}

func NewRegistry(logger *log.Logger) *Registry {
	return &Registry{reg: newRegistry(), logger: logger}
}

func (r *Registry) Add() *Subscriber     { return r.reg.add() }
func (r *Registry) Remove(s *Subscriber) { r.reg.remove(s) }
func (r *Registry) Publish(env Envelope) { r.reg.publish(env, r.logger) }

// Service applies one pending registration request, replying to a
// register request with the newly created subscriber. Called only from
// the controller goroutine, alongside Bus.Requests() in Run's select
// loop — the map it mutates has no other writer.
func (r *Registry) Service(req readerRequest) {
	if req.register != nil {
		req.register <- r.Add()
		return
	}
	if req.unregister != nil {
		r.Remove(req.unregister)
	}
}
func (r *Registry) Count() int             { return len(r.reg.subs) }
