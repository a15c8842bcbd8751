// Package descriptor provides read-only access to the two-tier JSON document
// chain that describes every catalog entry.
//
// The pointer descriptor (onchain.json) nests a single asset under the
// "721" key, a policy id and an asset id, and carries a thumbnail locator
// plus exactly one ExtendedMetadata resource. The extended metadata document
// (nvla.json) lists the leaf resources: card, artwork, video and character
// data. Both shapes are validated against JSON Schemas; a present but
// malformed document is a schema violation while an absent one is a missing
// descriptor.
package descriptor
