// Package snapshot runs the inventory pipeline end to end: enumerate the
// sources, fan out the per-device remote calls, merge everything into the
// unified view, and serve or publish the result.
package snapshot
