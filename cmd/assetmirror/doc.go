// Command assetmirror mirrors content-addressed catalog assets into per-backend
// roots and verifies the result.
//
// Everyday commands:
//
//	assetmirror preflight        check roots, free space, gateways and binaries
//	assetmirror mirror           fetch and hash-verify every catalog entry
//	assetmirror verify           sweep every root for missing or malformed files
//	assetmirror history          list recent runs from the ledger
//
// Utilities: export-metadata, hash, resolve, config init, config validate.
package main
