package redis

// Redis key naming conventions for acpflow data.
// All keys are prefixed with "acpflow:" to avoid collisions.

const keyPrefix = "acpflow:"

// ── Job keys ──

// jobKey returns the key for a job record: acpflow:job:{id}
func jobKey(id string) string { return keyPrefix + "job:" + id }

// stateKey returns the Sorted Set indexing jobs in a state, scored by
// creation time: acpflow:jobs:state:{state}
func stateKey(state string) string { return keyPrefix + "jobs:state:" + state }

// requesterKey returns the Sorted Set indexing a requester's jobs,
// scored by creation time: acpflow:jobs:requester:{id}
func requesterKey(requesterID string) string { return keyPrefix + "jobs:requester:" + requesterID }

// ── Dead letter keys ──

// deadLetterKey returns the key for a dead letter entry: acpflow:dl:{id}
func deadLetterKey(id string) string { return keyPrefix + "dl:" + id }

// deadLetterIndexKey is the Sorted Set of all entry IDs, scored by
// failure time.
const deadLetterIndexKey = keyPrefix + "dl_index"
