// Package cap models Common Alerting Protocol (CAP) 1.2 alert messages.
//
// # Document model
//
// A CAP document is kept as a namespace-aware element tree rather than a
// fixed struct so that elements this service does not interpret (extension
// parameters, resources, signatures) survive a parse/serialize round trip.
// Typed accessors read the well-known elements:
//
//	alert: identifier, sender, sent, status, msgType, scope, references
//	info:  language, event, urgency, severity, certainty, headline,
//	       description, instruction, expires, web, contact
//	area:  areaDesc, polygon*, circle*, geocode{valueName, value}*
//
// # Canonical form
//
// Serialization trims text nodes and drops whitespace between elements, so
// Parse(m.Bytes()).Bytes() is byte-identical to m.Bytes(). Both the tree
// builder and the serializer use explicit stacks; nesting depth never grows
// the goroutine stack.
//
// # Namespaces
//
// Many publishers still tag 1.2-shaped documents with the CAP 1.1 namespace,
// and LU-Alert uses a profile namespace. Both are rewritten to the 1.2
// namespace by literal substitution before parsing.
//
// # Expiry
//
// A message is expired only when every info block carries a parseable expiry
// that is not in the future. A block without an expiry keeps the message
// alive.
package cap
