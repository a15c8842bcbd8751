// Package textutil turns descriptor-supplied identifiers into names that are
// safe to use as a single path segment.
package textutil
