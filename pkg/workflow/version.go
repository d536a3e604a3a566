package workflow

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// workflowHash computes the content hash used to detect whether a workflow
// has changed since a proposal was based on it, matching the hash the
// trigger dispatcher records on every execution snapshot.
func workflowHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// bumpVersion increments the patch component of a major.minor.patch
// version string. A version that doesn't parse as three dot-separated
// integers is treated as a foreign/hand-edited value and rebased to
// "<version>.1" rather than rejected outright, since workflows created
// before this scheme existed may carry an arbitrary string.
func bumpVersion(version string) string {
	parts := splitVersion(version)
	if len(parts) != 3 {
		return version + ".1"
	}
	major, errA := strconv.Atoi(parts[0])
	minor, errB := strconv.Atoi(parts[1])
	patch, errC := strconv.Atoi(parts[2])
	if errA != nil || errB != nil || errC != nil {
		return version + ".1"
	}
	return strconv.Itoa(major) + "." + strconv.Itoa(minor) + "." + strconv.Itoa(patch+1)
}

func splitVersion(version string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(version); i++ {
		if version[i] == '.' {
			parts = append(parts, version[start:i])
			start = i + 1
		}
	}
	parts = append(parts, version[start:])
	return parts
}
