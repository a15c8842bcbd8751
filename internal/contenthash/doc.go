// Package contenthash computes content identifiers for local files.
//
// Identifiers follow the IPFS UnixFS addressing scheme so that a hash computed
// here matches the CID an IPFS node reports for the same bytes. Two adapters
// satisfy the Hasher interface: UnixFS computes the CIDv0 natively, and CLI
// shells out to an installed ipfs binary. Engines depend only on Hasher.
package contenthash
