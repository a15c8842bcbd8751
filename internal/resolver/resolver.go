// Package resolver maps declared resource locators onto distribution backends.
//
// Locators in descriptor documents come in three flavours: sia:// links served
// through a Sia portal, ipfs:// links served through an IPFS gateway, and plain
// HTTP(S) or bare host/path references served by the CDN mirror. Resolution is
// pure: every input maps to exactly one backend and fetch URL.
package resolver

import (
	"regexp"
	"strings"
)

// Backend tags the distribution mechanism a locator resolves to.
type Backend string

const (
	BackendCDN  Backend = "cdn"
	BackendIPFS Backend = "ipfs"
	BackendSia  Backend = "sia"
)

const (
	siaPrefix  = "sia://"
	ipfsPrefix = "ipfs://"
)

// Backends lists every mirror backend in a stable order.
func Backends() []Backend {
	return []Backend{BackendCDN, BackendIPFS, BackendSia}
}

// ParseBackend converts a configuration value into a Backend tag.
func ParseBackend(value string) (Backend, bool) {
	switch Backend(strings.ToLower(strings.TrimSpace(value))) {
	case BackendCDN:
		return BackendCDN, true
	case BackendIPFS:
		return BackendIPFS, true
	case BackendSia:
		return BackendSia, true
	default:
		return "", false
	}
}

func (b Backend) String() string { return string(b) }

// httpPattern matches absolute http(s) URLs with a dotted host. It is anchored
// at the start only; trailing garbage is accepted as part of the path.
var httpPattern = regexp.MustCompile(`^https?://(www\.)?[-a-zA-Z0-9@:%._\+~#=]{1,256}\.[a-zA-Z0-9()]{1,6}\b([-a-zA-Z0-9()@:%_\+.~#?&/=]*)`)

// Resolver rewrites protocol locators onto configured gateway bases.
type Resolver struct {
	SiaPortal   string
	IPFSGateway string
}

// New builds a Resolver for the given portal and gateway base URLs.
func New(siaPortal, ipfsGateway string) Resolver {
	return Resolver{SiaPortal: siaPortal, IPFSGateway: ipfsGateway}
}

// Resolve returns the concrete fetch URL and backend for locator. Rules are
// evaluated in order and the first match wins.
func (r Resolver) Resolve(locator string) (string, Backend) {
	switch {
	case strings.HasPrefix(locator, siaPrefix):
		return r.SiaPortal + strings.TrimPrefix(locator, siaPrefix), BackendSia
	case strings.HasPrefix(locator, ipfsPrefix):
		return r.IPFSGateway + strings.TrimPrefix(locator, ipfsPrefix), BackendIPFS
	case httpPattern.MatchString(locator):
		return locator, BackendCDN
	default:
		return "https://" + locator, BackendCDN
	}
}
