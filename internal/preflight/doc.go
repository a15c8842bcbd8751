// Package preflight provides readiness checks for the directories, gateways
// and external binaries a mirror run depends on.
//
// The preflight command prints every result; mirror calls RunAll before
// touching the network and refuses to start when a required check fails.
package preflight
