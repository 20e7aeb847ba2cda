// Package ratelimit provides pacing for remote catalog queries.
//
// The downloader issues one blocking query per page of identifiers; the
// token bucket caps how many queries go out per refill period so that a
// large field does not hammer the catalog service.
//
// Interface:
//
// Rate limiters implement the Limiter interface:
//   - Allow() bool - Check if a request is allowed
//   - Wait() - Block until a request is allowed
//   - Reset() - Reset the limiter state
//
// Usage:
//
//	// 60 queries per minute
//	limiter := ratelimit.NewTokenBucket(60, time.Minute)
//
//	limiter.Wait()
//	// issue the query
package ratelimit
