package builtin

import (
	"strconv"
	"strings"
)

// CanonicalHeader cleans a single raw header: trimmed, lowercased, with every
// space replaced by an underscore. Unicode normalization forms are left as
// they are, so composed and decomposed spellings stay distinct.
//
// "account Created at" and "Account Created At" both become
// "account_created_at".
func CanonicalHeader(h string) string {
	h = strings.TrimSpace(h)
	h = strings.ToLower(h)
	return strings.ReplaceAll(h, " ", "_")
}

// CanonicalHeaders cleans a header row and makes the result unique.
//
// The output has the same length as hdr and is positionally aligned with it.
// When a cleaned name was already emitted earlier in the row, the first free
// numeric suffix is appended ("name_1", then "name_2", ...). Suffixed names
// count as emitted, so a later literal "name_1" header is suffixed in turn.
//
// Empty headers clean to "" and follow the same collision rule ("", "_1", ...).
func CanonicalHeaders(hdr []string) []string {
	out := make([]string, len(hdr))
	seen := make(map[string]struct{}, len(hdr))

	for i, h := range hdr {
		name := CanonicalHeader(h)
		if _, dup := seen[name]; dup {
			for suffix := 1; ; suffix++ {
				candidate := name + "_" + strconv.Itoa(suffix)
				if _, taken := seen[candidate]; !taken {
					name = candidate
					break
				}
			}
		}
		seen[name] = struct{}{}
		out[i] = name
	}
	return out
}
