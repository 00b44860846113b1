package httpdispatcher

import "net/url"

// ViewQueryOptions holds the small subset of Couchbase view-query
// parameters the router renders on behalf of callers. The fluent query
// builder itself is out of scope; this only covers the on_error
// parameter, whose polarity needed correcting (see OnError).
type ViewQueryOptions struct {
	// StopOnError, when true, tells the view engine to abort the whole
	// query on the first partition error instead of returning partial
	// results for the partitions that succeeded.
	StopOnError bool
}

// OnError renders the on_error query parameter for opts. stop=true
// means "stop", stop=false means "continue", as the parameter name
// suggests.
func OnError(stop bool) string {
	if stop {
		return "stop"
	}
	return "continue"
}

// Encode renders opts as URL query parameters for a view request.
func (opts ViewQueryOptions) Encode() url.Values {
	v := url.Values{}
	v.Set("on_error", OnError(opts.StopOnError))
	return v
}
