package usecase

import (
	"bytes"
	"math"
	"path"
	"strings"
)

// binaryExtensions are never fetched; their path is enough to call them binary.
var binaryExtensions = map[string]struct{}{
	".png":   {},
	".jpg":   {},
	".jpeg":  {},
	".gif":   {},
	".bmp":   {},
	".ico":   {},
	".exe":   {},
	".dll":   {},
	".so":    {},
	".dylib": {},
}

const (
	// nulRatioThreshold is the NUL-byte share at or above which content is binary.
	nulRatioThreshold = 0.1
	// ambiguityMargin widens the threshold into a band flagged as ambiguous.
	ambiguityMargin = 0.01
)

// Classification is the outcome of binary detection for one file.
type Classification struct {
	Binary    bool
	Ambiguous bool
	NulRatio  float64
	ByName    bool
}

// HasBinaryExtension reports whether the file name's extension is on the
// deny-list. Matching is case-insensitive.
func HasBinaryExtension(p string) bool {
	_, ok := binaryExtensions[strings.ToLower(path.Ext(p))]
	return ok
}

// Classify decides whether a file is binary from its path and decoded content.
func Classify(p string, content []byte) Classification {
	if HasBinaryExtension(p) {
		return Classification{Binary: true, ByName: true}
	}
	if len(content) == 0 {
		return Classification{}
	}

	ratio := float64(bytes.Count(content, []byte{0})) / float64(len(content))
	return Classification{
		Binary:    ratio >= nulRatioThreshold,
		Ambiguous: len(content) == 1 || math.Abs(ratio-nulRatioThreshold) <= ambiguityMargin,
		NulRatio:  ratio,
	}
}
