// Package odata implements the broker adapter over the Monitor OData
// service. It speaks both the v2 (d.results) and bare value JSON envelopes.
package odata
