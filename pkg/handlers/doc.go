// See the package comment in deps.go for the grounding and division of
// responsibility across the ten pipeline stages this package builds.
package handlers
