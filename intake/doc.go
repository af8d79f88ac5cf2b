// Package intake validates and admits newly submitted jobs. Its
// handler runs on jobs entering the pending state: it moves them to
// validating, checks requester standing, rate limits, per-type
// parameters, deadlines, and payment ceilings, then either rejects the
// job or prices it and accepts it.
package intake
