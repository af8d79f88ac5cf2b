// Package delivery sends signed job results to the requester's
// delivery endpoint.
//
// The completed-state handler moves an undelivered job into DELIVERING;
// the delivering-state handler builds and signs a receipt, submits it
// through a Sink, and retries on a fixed delay until the attempt budget
// runs out. The Monitor fails jobs that have been stuck in DELIVERING
// past the delivery timeout.
package delivery
