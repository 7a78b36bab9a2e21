package redis

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/vecrag/internal/db"
)

const (
	defaultVectorField = "__vector"
	defaultTextField   = "__content"
	dialect            = "2"
)

var (
	errNoIndex  = errors.New("index name is required")
	errNoVector = errors.New("vector is required")
	errNoQuery  = errors.New("query is required")
	errNoLimit  = errors.New("result limit must be positive")
)

// SearchKNN runs a pre-filtered KNN query and converts cosine distance to
// similarity in [0, 1].
func (s *Store) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	switch {
	case q.IndexName == "":
		return nil, errNoIndex
	case len(q.Vector) == 0:
		return nil, errNoVector
	case q.K <= 0:
		return nil, errNoLimit
	}

	field := cmpOr(q.VectorField, defaultVectorField)
	base := "*"
	if pre := buildFilter(q.Filter); pre != "" {
		base = "(" + pre + ")"
	}
	expr := fmt.Sprintf("%s=>[KNN %d @%s $BLOB AS %s]", base, q.K, field, db.ScoreField)

	args := withReturn([]string{q.IndexName, expr}, q.ReturnFields)
	args = append(args, "PARAMS", "2", "BLOB", packVector(q.Vector), "DIALECT", dialect)

	raw, err := s.ftSearch(ctx, args)
	if err != nil {
		return nil, err
	}
	return decodeReply(raw, false)
}

// SearchBM25 runs a pre-filtered full-text query scored by the engine's BM25.
func (s *Store) SearchBM25(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error) {
	switch {
	case q.IndexName == "":
		return nil, errNoIndex
	case q.Query == "":
		return nil, errNoQuery
	case q.TopK <= 0:
		return nil, errNoLimit
	}

	expr := fmt.Sprintf("@%s:(%s)", cmpOr(q.TextField, defaultTextField), escapeQuery(q.Query))
	if pre := buildFilter(q.Filter); pre != "" {
		expr = pre + " " + expr
	}

	args := withReturn([]string{q.IndexName, expr}, q.ReturnFields)
	args = append(args, "WITHSCORES", "LIMIT", "0", strconv.Itoa(q.TopK), "DIALECT", dialect)

	raw, err := s.ftSearch(ctx, args)
	if err != nil {
		return nil, err
	}
	return decodeReply(raw, true)
}

func (s *Store) ftSearch(ctx context.Context, args []string) ([]rueidis.RedisMessage, error) {
	raw, err := s.do(ctx, s.b().Arbitrary("FT.SEARCH").Args(args...).Build()).ToArray()
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}
	return raw, nil
}

func withReturn(args, fields []string) []string {
	if len(fields) == 0 {
		return args
	}
	args = append(args, "RETURN", strconv.Itoa(len(fields)))
	return append(args, fields...)
}

func cmpOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// decodeReply walks an FT.SEARCH reply. Without WITHSCORES each hit is
// [key, fields]; with it each hit is [key, score, fields].
func decodeReply(raw []rueidis.RedisMessage, withScores bool) (*db.SearchResult, error) {
	if len(raw) == 0 {
		return &db.SearchResult{}, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return &db.SearchResult{}, nil
	}

	stride := 2
	if withScores {
		stride = 3
	}
	res := &db.SearchResult{Total: int(total), Entries: make([]db.SearchEntry, 0, (len(raw)-1)/stride)}
	for i := 1; i+stride-1 < len(raw); i += stride {
		hit := raw[i : i+stride]
		key, err := hit[0].ToString()
		if err != nil {
			continue
		}
		fieldsMsg, err := hit[stride-1].ToArray()
		if err != nil {
			continue
		}
		entry := db.SearchEntry{Key: key, Fields: fieldMap(fieldsMsg)}

		if withScores {
			score, ok := parseFloat(hit[1])
			if !ok {
				continue
			}
			entry.Score = score
		} else if dist, ok := entry.Fields[db.ScoreField]; ok {
			delete(entry.Fields, db.ScoreField)
			if d, err := strconv.ParseFloat(dist, 64); err == nil {
				entry.Score = max(0, 1-d)
			}
		}
		res.Entries = append(res.Entries, entry)
	}
	return res, nil
}

func parseFloat(m rueidis.RedisMessage) (float64, bool) {
	str, err := m.ToString()
	if err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(str, 64)
	return f, err == nil
}

func fieldMap(pairs []rueidis.RedisMessage) map[string]string {
	out := make(map[string]string, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		k, kerr := pairs[i].ToString()
		v, verr := pairs[i+1].ToString()
		if kerr != nil || verr != nil {
			continue
		}
		out[k] = v
	}
	return out
}

// buildFilter renders the pre-filter clause. Tag conditions come first, then
// numeric ranges; FT.SEARCH intersects space-separated clauses.
func buildFilter(f db.Filter) string {
	if f.IsEmpty() {
		return ""
	}
	var sb strings.Builder
	for _, t := range f.Tags {
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "@%s:{%s}", t.Field, escapeTag(t.Value))
	}
	for _, n := range f.Numeric {
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "@%s:[%s %s]", n.Field, bound(n.Min), bound(n.Max))
	}
	return sb.String()
}

func bound(v float64) string {
	if math.IsInf(v, -1) {
		return "-inf"
	}
	if math.IsInf(v, 1) {
		return "+inf"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

const (
	tagSpecials   = ",.<>{}\"':;!@#$%^&*()-+=~ "
	querySpecials = "\\'\"@{}()|-~*[]!%^$<>=;+"
)

func escapeTag(s string) string   { return escapeAny(s, tagSpecials) }
func escapeQuery(s string) string { return escapeAny(s, querySpecials) }

func escapeAny(s, specials string) string {
	if !strings.ContainsAny(s, specials) {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s) + 8)
	for _, r := range s {
		if strings.ContainsRune(specials, r) {
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// packVector encodes v as little-endian float32, the layout FLOAT32 vector
// fields expect.
func packVector(v []float32) string {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return string(buf)
}
