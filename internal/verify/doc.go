// Package verify sweeps every backend root for the canonical resources of
// each catalog entry and reports advisory and fatal findings.
//
// Advisory checks (existence, emptiness, size bounds, image dimensions and the
// optional hash comparison) never stop the sweep. The identity check on the
// character document is fatal: a name that disagrees with the catalog means
// two entries were cross-wired. Every root, entry and file is still visited
// so operators get the full picture from one run.
package verify
