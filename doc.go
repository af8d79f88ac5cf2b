// Package acpflow provides a job lifecycle orchestration engine for
// agent-commerce workloads. It tracks units of work submitted by external
// requesters through intake, validation, execution, result delivery, and
// financial settlement, enforcing per-job service-level timers and bounded
// retries.
//
// acpflow is designed as a library, not a service. Import it, configure a
// store, plug in your processors, signer, and settlement backend, and the
// agent package wires the rest.
//
// # Quick Start
//
//	a, err := agent.New(
//	    agent.WithStore(memory.New()),
//	    agent.WithSigner(signer),
//	    agent.WithSink(registryClient),
//	    agent.WithSettlement(registryClient),
//	)
//
// # Architecture
//
// Every job is a state machine. The lifecycle orchestrator owns the job
// table and performs all state transitions; each state carries an ordered
// list of handlers that fire whenever a job enters it, so a single submit
// call can cascade a job from PENDING through validation, processing,
// delivery, and settlement before control returns to the caller. Three
// background monitors (SLA, delivery, payment) scan for time-based
// violations and issue their own transitions, serialized per job against
// in-flight handler chains.
//
// All entity IDs use TypeID: type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package acpflow
