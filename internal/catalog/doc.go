// Package catalog talks to the external card catalog.
//
// Fetcher owns request pacing and retries. Requests travel on one of two
// lanes: the search lane is paced to one dispatch per interval across the
// whole process and capped by a small semaphore, while the bulk lane
// (collection, named, printing and image lookups) is only capped. Both
// semaphores admit waiters in submission order.
//
// Retries follow a Policy. Rate-limit responses honour Retry-After; under a
// policy with free rate-limit waits they do not consume attempts. Server and
// network failures back off exponentially with jitter. Other client errors
// fail immediately as *StatusError.
//
// Client layers the catalog endpoints on top of a Fetcher and decodes
// records, paginating list responses through Paginate.
package catalog
