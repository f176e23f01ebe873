// Package metrics is the pipeline's only Prometheus touchpoint; other
// packages import it purely to increment/observe the collectors defined
// here, never to register their own.
package metrics
