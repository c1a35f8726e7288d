package mount

import (
	"strconv"
	"strings"
)

// parsePeerGroup extracts the shared peer group id from a mountinfo
// "optional fields" string, e.g. "shared:4 master:7". A mount with no
// "shared:" token is not a shared mount (it may be private, slave-only, or
// unbindable); shared reports false in that case.
func parsePeerGroup(optional string) (id int, shared bool) {
	for _, field := range strings.Fields(optional) {
		rest, ok := strings.CutPrefix(field, "shared:")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(rest)
		if err != nil {
			continue
		}
		return n, true
	}
	return 0, false
}
