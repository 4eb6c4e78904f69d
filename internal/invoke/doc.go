// Package invoke describes remote calls destined for the rendering client.
//
// An Invocation names a client-side function, the widget it targets and its
// arguments. Every Invocation derives a coalescing Key; a Queue keeps only the
// latest Invocation per Key while preserving the position at which the Key
// was first seen, so many mutations of one property during a processing
// cycle collapse into a single write without reordering distinct calls.
//
// The function spec accepted by New has three forms:
//
//	"key^function"  explicit coalescing key
//	"^function"     key defaults to the function name
//	"function"      unique key, never coalesced
package invoke
