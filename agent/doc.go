// Package agent wires every acpflow subsystem together. It constructs
// the lifecycle orchestrator, registers the intake, execution, delivery,
// and payment handlers in dispatch order, and runs the three background
// monitors.
//
// This package sits above all subsystem packages and below the
// application layer. The root acpflow package defines Entity and the
// shared Config (imported by job, intake, etc.) and so cannot import
// those packages back; agent is where they meet.
package agent
