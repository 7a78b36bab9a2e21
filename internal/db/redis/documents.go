package redis

import (
	"context"
	"sort"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/vecrag/internal/db"
)

// tagScript writes ARGV pairs into KEYS[1] only when the hash already exists,
// so a tag racing a delete cannot resurrect a partial document.
var tagScript = rueidis.NewLuaScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV))
return 1
`)

// SetFieldsIfExists atomically updates fields of an existing hash.
func (s *Store) SetFieldsIfExists(ctx context.Context, key string, fields map[string]string) (bool, error) {
	if len(fields) == 0 {
		return false, nil
	}
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)
	argv := make([]string, 0, 2*len(names))
	for _, k := range names {
		argv = append(argv, k, fields[k])
	}

	n, err := tagScript.Exec(ctx, s.client, []string{key}, argv).AsInt64()
	if err != nil {
		return false, &db.Error{Op: db.OpTag, Key: key, Err: err}
	}
	return n == 1, nil
}
