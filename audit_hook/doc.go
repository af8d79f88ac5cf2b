// Package audithook is an acpflow extension that bridges lifecycle
// events to an immutable audit trail backend.
//
// Every job lifecycle hook emits a structured audit event through the
// [Recorder] interface. The extension assigns appropriate severity
// levels (info for normal operations, warning for rejections and SLA
// breaches, critical for dead-lettered jobs) and rich metadata (job
// type, requester, states, payment amounts, errors).
//
// # Usage
//
//	a, err := agent.New(
//	    agent.WithStore(st),
//	    agent.WithExtension(audithook.New(recorder)),
//	)
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionJobRejected,
//	        audithook.ActionSLABreach,
//	        audithook.ActionJobDeadLettered,
//	    ),
//	)
package audithook
