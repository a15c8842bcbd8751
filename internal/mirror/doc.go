// Package mirror copies every catalog entry's resources into the configured
// backend roots and verifies them against their declared content hashes.
//
// Per entry the engine walks the hash chain in order: the pointer document
// names one extended metadata resource, which is fetched and verified before
// any of the leaf resources it lists. Thumbnails are copied to every root
// without verification. A file already present at its target path is trusted
// and never fetched or hashed again, so re-running a partially completed
// mirror only does the remaining work.
//
// Failures are scoped by kind. Schema violations and extended metadata hash
// mismatches abort the run; missing pointer documents skip the entry; leaf
// mismatches fail the entry or the run depending on LeafPolicy; network
// failures after retries fail the entry.
package mirror
