// Package fake provides a deterministic in-memory fleet backing every
// source adapter interface. It exists for demo mode and for exercising the
// snapshot pipeline without a real farm.
package fake
