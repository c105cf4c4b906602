package manifest

import (
	"regexp"
)

var hrefAttr = regexp.MustCompile(`((?:xlink:)?href)="([^"]*)"`)

// RewriteImageHrefs rewrites every href/xlink:href in raw shapes.svg to the
// path the Scene Server actually serves the corresponding downloaded asset
// at, via resolve. Slides are fetched under the same relative path their
// href already names, so resolve is usually the identity function; it
// exists to absorb the cases (upstream query strings, path prefixes the
// fetcher stripped) where the published href does not match the on-disk
// layout verbatim.
func RewriteImageHrefs(svg []byte, resolve func(rel string) string) []byte {
	return hrefAttr.ReplaceAllFunc(svg, func(m []byte) []byte {
		sub := hrefAttr.FindSubmatch(m)
		rel := string(sub[2])
		newRel := resolve(rel)
		return []byte(string(sub[1]) + `="` + newRel + `"`)
	})
}
