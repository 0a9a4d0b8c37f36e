// Package sink delivers accepted readings to storage or to a network endpoint.
//
// The active destination is a Target, which is either Storage or Network, so
// "no destination" cannot be expressed. Dispatcher normalizes both branches
// into a Result: storage that is not connected is never written to, an empty
// network address is a configuration error, and transport failures are
// reported as ErrSinkUnavailable with the underlying message preserved.
package sink
