// Package event implements the typed event model and its delivery paths.
//
// An Event is created against a target component (or, with no target,
// against a page), offered to the target's listeners in registration order,
// and may be stopped by any listener; later listeners then do not run.
//
// Events are delivered either immediately with Send, on the calling
// goroutine, or deferred with Post, which appends them to the owning page's
// Queue. A page drains its Queue once per processing cycle. When the first
// event lands in an empty Queue from outside the page's own processing
// cycle, the page's client is pinged so that a cycle happens at all.
//
// Requests from the client carry a string event type. A Registry maps type
// names (or glob patterns such as "onMouse*") to a finite set of variants,
// each with a declarative list of fields bound from the request payload.
// The Router turns request payloads into events and sends or posts them.
package event
