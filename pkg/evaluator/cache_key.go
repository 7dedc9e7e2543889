package evaluator

import (
	"math"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/rockcut/gridformula/pkg/types"
)

// CacheKey returns the cache key of a remote call: an xxhash64 digest of
// the upper-cased function name, a type-tagged encoding of each argument and
// the row identity. Equal arguments of different types produce different
// keys ("1" and 1 do not collide).
func CacheKey(name string, args []interface{}, rowIdentity string) string {
	d := xxhash.New()
	_, _ = d.WriteString(strings.ToUpper(name))
	var buf [8]byte
	for _, a := range args {
		_, _ = d.Write([]byte{0})
		switch v := types.Normalize(a).(type) {
		case float64:
			bits := math.Float64bits(v)
			if v == 0 {
				bits = 0 // -0 and 0 are the same argument
			}
			for i := range buf {
				buf[i] = byte(bits >> (8 * i))
			}
			_, _ = d.Write([]byte{'n'})
			_, _ = d.Write(buf[:])
		case string:
			_, _ = d.Write([]byte{'s'})
			_, _ = d.WriteString(strconv.Itoa(len(v)))
			_, _ = d.Write([]byte{':'})
			_, _ = d.WriteString(v)
		case bool:
			if v {
				_, _ = d.Write([]byte{'t'})
			} else {
				_, _ = d.Write([]byte{'f'})
			}
		case nil:
			_, _ = d.Write([]byte{'z'})
		case types.UndefinedType:
			_, _ = d.Write([]byte{'u'})
		default:
			_, _ = d.Write([]byte{'?'})
			_, _ = d.WriteString(types.Format(v))
		}
	}
	_, _ = d.Write([]byte{1})
	_, _ = d.WriteString(rowIdentity)
	return strconv.FormatUint(d.Sum64(), 16)
}
