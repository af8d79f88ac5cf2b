// Package payment settles finished jobs.
//
// The completed-state handler runs after delivery has marked the
// record delivered: zero or trivially small amounts are waived
// straight to FINALIZED, large or trading jobs settle immediately by
// releasing their escrow, and everything else gets a direct payment
// request and moves to AWAITING_PAYMENT. The Monitor polls the
// settlement service until the payment lands, fails, or times out.
// Refunds transfer a completed payment back to the requester.
package payment
