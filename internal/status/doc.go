// Package status derives the service's human-facing health from a cache
// snapshot: readiness, a one-line message and a list of diagnostic hints.
// Everything here is a pure function of its inputs.
package status
