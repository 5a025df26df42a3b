package persist

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/spf13/cast"

	lullerrors "github.com/Iron-Ham/lull/internal/errors"
)

// Record is the persisted form of one session. Times are epoch
// milliseconds; GracePeriod is in milliseconds. EndTime is nil while the
// session is active.
type Record struct {
	ID          string `json:"id" toml:"id" yaml:"id"`
	StartTime   int64  `json:"startTime" toml:"startTime" yaml:"startTime"`
	EndTime     *int64 `json:"endTime,omitempty" toml:"endTime,omitempty" yaml:"endTime,omitempty"`
	GracePeriod int64  `json:"gracePeriod" toml:"gracePeriod" yaml:"gracePeriod"`
}

// Field names accepted on load. The legacy names were written by earlier
// versions of the session file.
const (
	fieldID                = "id"
	fieldLegacyID          = "uuid"
	fieldStartTime         = "startTime"
	fieldEndTime           = "endTime"
	fieldGracePeriod       = "gracePeriod"
	fieldLegacyGracePeriod = "sessionExpirationGracePeriod"
)

// parseRecords converts decoded document elements into records. Elements
// that fail validation are skipped; the returned error, if any, is a
// corrupt StorageError joining one RecordError per skipped element.
func parseRecords(elems []any) ([]Record, error) {
	records := make([]Record, 0, len(elems))
	seen := make(map[string]struct{}, len(elems))
	var errs []error

	for i, elem := range elems {
		m, ok := asStringMap(elem)
		if !ok {
			errs = append(errs, &lullerrors.RecordError{Index: i, Err: fmt.Errorf("expected object, got %T", elem)})
			continue
		}

		rec, err := recordFromMap(i, m)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := seen[rec.ID]; dup {
			errs = append(errs, &lullerrors.RecordError{Index: i, Field: fieldID, Err: fmt.Errorf("duplicate id %q", rec.ID)})
			continue
		}
		seen[rec.ID] = struct{}{}
		records = append(records, rec)
	}

	if len(errs) > 0 {
		return records, lullerrors.NewStorageError(lullerrors.KindCorrupt,
			fmt.Sprintf("skipped %d malformed record(s)", len(errs)), lullerrors.Join(errs...))
	}
	return records, nil
}

func recordFromMap(index int, m map[string]any) (Record, error) {
	var rec Record
	fail := func(field string, err error) (Record, error) {
		return Record{}, &lullerrors.RecordError{Index: index, Field: field, Err: err}
	}

	rawID, ok := lookup(m, fieldID, fieldLegacyID)
	if !ok {
		return fail(fieldID, lullerrors.New("missing"))
	}
	id, ok := rawID.(string)
	if !ok || id == "" {
		return fail(fieldID, fmt.Errorf("expected non-empty string, got %v", rawID))
	}
	rec.ID = id

	rawStart, ok := lookup(m, fieldStartTime)
	if !ok {
		return fail(fieldStartTime, lullerrors.New("missing"))
	}
	start, err := toInt64(rawStart)
	if err != nil {
		return fail(fieldStartTime, err)
	}
	rec.StartTime = start

	if rawEnd, ok := lookup(m, fieldEndTime); ok && rawEnd != nil {
		end, err := toInt64(rawEnd)
		if err != nil {
			return fail(fieldEndTime, err)
		}
		if end < start {
			return fail(fieldEndTime, fmt.Errorf("end %d precedes start %d", end, start))
		}
		rec.EndTime = &end
	}

	rawGrace, ok := lookup(m, fieldGracePeriod, fieldLegacyGracePeriod)
	if !ok {
		return fail(fieldGracePeriod, lullerrors.New("missing"))
	}
	grace, err := toInt64(rawGrace)
	if err != nil {
		return fail(fieldGracePeriod, err)
	}
	if grace < 0 {
		return fail(fieldGracePeriod, fmt.Errorf("negative grace period %d", grace))
	}
	rec.GracePeriod = grace

	return rec, nil
}

func lookup(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v, true
		}
	}
	return nil, false
}

// toInt64 accepts the numeric representations produced by the supported
// codecs. Strings and fractional values are rejected.
func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case nil:
		return 0, lullerrors.New("null value")
	case string, bool:
		return 0, fmt.Errorf("expected integer, got %T", v)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("expected integer, got %q", n.String())
		}
		return toInt64(f)
	case float64:
		return floatToInt64(n)
	case float32:
		return floatToInt64(float64(n))
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("integer %d out of range", n)
		}
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, fmt.Errorf("integer %d out of range", n)
		}
	}
	return cast.ToInt64E(v)
}

// floatToInt64 accepts integral floats inside the int64 range. 2^63 is the
// first float64 above math.MaxInt64.
func floatToInt64(f float64) (int64, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("expected integer, got %v", f)
	}
	if f >= math.Exp2(63) || f < -math.Exp2(63) {
		return 0, fmt.Errorf("integer %v out of range", f)
	}
	return int64(f), nil
}

func asStringMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[ks] = val
		}
		return out, true
	default:
		return nil, false
	}
}
