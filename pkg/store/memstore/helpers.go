package memstore

import "strconv"

func itoa(n int) string { return strconv.Itoa(n) }

// extractJSONString does a minimal, dependency-free scan for a top-level
// string field in a JSON object — enough for memstore's webhook path
// uniqueness index. It is not a general JSON reader; pkg/trigger parses the
// config payload properly wherever semantics matter.
func extractJSONString(data []byte, field string) string {
	needle := []byte(`"` + field + `":"`)
	idx := indexBytes(data, needle)
	if idx < 0 {
		return ""
	}
	start := idx + len(needle)
	end := start
	for end < len(data) && data[end] != '"' {
		if data[end] == '\\' {
			end++
		}
		end++
	}
	if end > len(data) {
		return ""
	}
	return string(data[start:end])
}

func indexBytes(data, needle []byte) int {
	if len(needle) == 0 || len(data) < len(needle) {
		return -1
	}
	for i := 0; i+len(needle) <= len(data); i++ {
		match := true
		for j := range needle {
			if data[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
