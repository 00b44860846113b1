/*
Package httpdispatcher selects a URI for one of the cluster's HTTP
services (views, query, search, analytics) and executes a single request
against it (spec §4.6).

Selection policy differs by service: Query and Analytics round-robin
over URIs whose failure count is below QueryFailedThreshold; FTS and
Views pick uniformly at random among healthy URIs. When every URI for a
service is unhealthy, the dispatcher fails open — it clears every
failure counter and tries once against the full set rather than
returning ErrNoAvailableNode outright, since a transient all-down
reading is far more likely than the whole service actually being gone.

A background prober pings retired URIs on RehabInterval so a URI that
recovered between requests is not stuck waiting for the request path's
now-last_failure>rehab check to notice.
*/
package httpdispatcher
