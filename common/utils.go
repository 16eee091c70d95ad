package common

import (
	"strings"

	uuid "github.com/nu7hatch/gouuid"
)

// GenUUID returns a random v4 uuid string, used as the operation handle id.
func GenUUID() string {
	// uuid.NewV4 only fails when crypto/rand does, retry until it doesn't.
	for {
		if id, err := uuid.NewV4(); err == nil {
			return id.String()
		}
	}
}

// ShortID returns the first group of a uuid, for log lines.
func ShortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}

// SplitCommaSepToMap parses "k1=v1,k2=v2" into a map. Malformed pairs are skipped.
func SplitCommaSepToMap(commaSepString string) map[string]string {
	m := make(map[string]string)
	for _, pair := range strings.Split(commaSepString, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 || kv[0] == "" {
			continue
		}
		m[kv[0]] = kv[1]
	}
	return m
}
