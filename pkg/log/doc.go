// Package log provides the process-wide structured logger used by every
// other package. Call Init once at startup with the desired Config, then
// use the package-level helpers or a WithX child logger scoped to a
// component, event, peer, handler, or job name.
package log
