// Package dataloader provides the generic dictionary helpers behind batch
// loading: grouping related rows by key, indexing them, and ordering or
// diffing them against a requested key list.
//
// Keys read from a database rarely share a Go type with the keys a caller
// asked for (an int id against an int64 column, a numeric string against an
// integer). Normalize maps such values onto one comparable form, and KeyOf
// applies it to a key extractor:
//
//	posts, _ := repo.Query().WhereIn("user_id", ids...).Get(ctx)
//	byUser := dataloader.GroupByKey(posts, dataloader.KeyOf(func(p *model.Record) any {
//	    return p.Get("user_id").Interface()
//	}))
//	// byUser[dataloader.Normalize(7)] holds every post of user 7
package dataloader

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
)

// ErrNotFound is returned when an entity is not found in a batch result.
var ErrNotFound = errors.New("dataloader: entity not found")

// KeyFunc extracts a key from an entity.
type KeyFunc[K comparable, V any] func(V) K

// Normalize maps a key value onto a canonical comparable form: every
// integer kind and integral float becomes int64, byte slices and
// non-numeric strings become string, and decimal strings of an integer
// become that integer. nil stays nil.
func Normalize(v any) any {
	switch v := v.(type) {
	case nil:
		return nil
	case int64:
		return v
	case string:
		return normalizeString(v)
	case []byte:
		return normalizeString(string(v))
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if u := rv.Uint(); u <= math.MaxInt64 {
			return int64(u)
		}
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f == math.Trunc(f) && f >= math.MinInt64 && f <= math.MaxInt64 {
			return int64(f)
		}
		return f
	case reflect.String:
		return normalizeString(rv.String())
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return Normalize(rv.Elem().Interface())
	}
	if rv.Comparable() {
		return v
	}
	return fmt.Sprintf("%T:%v", v, v)
}

func normalizeString(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && strconv.FormatInt(n, 10) == s {
		return n
	}
	return s
}

// KeyOf wraps a key extractor so that it reports normalized keys.
func KeyOf[V any](fn func(V) any) KeyFunc[any, V] {
	return func(v V) any { return Normalize(fn(v)) }
}

// Keys returns the distinct keys of values in first-seen order. Nil keys
// are skipped.
func Keys[K comparable, V any](values []V, keyFn KeyFunc[K, V]) []K {
	seen := make(map[K]struct{}, len(values))
	keys := make([]K, 0, len(values))
	for _, v := range values {
		k := keyFn(v)
		if any(k) == nil {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}

// OrderByKeys reorders entities to match the order of requested keys.
// Missing entities are represented as zero values with corresponding errors.
func OrderByKeys[K comparable, V any](keys []K, values []V, keyFn KeyFunc[K, V]) ([]V, []error) {
	lookup := IndexByKey(values, keyFn)
	result := make([]V, len(keys))
	errs := make([]error, len(keys))
	for i, key := range keys {
		if v, ok := lookup[key]; ok {
			result[i] = v
		} else {
			errs[i] = ErrNotFound
		}
	}
	return result, errs
}

// GroupByKey groups entities by a key function. It is the dictionary of a
// one-to-many relation: every related row lands in the bucket of its
// foreign key.
func GroupByKey[K comparable, V any](values []V, keyFn KeyFunc[K, V]) map[K][]V {
	result := make(map[K][]V)
	for _, v := range values {
		key := keyFn(v)
		result[key] = append(result[key], v)
	}
	return result
}

// IndexByKey maps every key to a single entity, the first one seen. It is
// the dictionary of one-to-one relations.
func IndexByKey[K comparable, V any](values []V, keyFn KeyFunc[K, V]) map[K]V {
	result := make(map[K]V, len(values))
	for _, v := range values {
		key := keyFn(v)
		if _, ok := result[key]; !ok {
			result[key] = v
		}
	}
	return result
}

// MissingKeys returns the requested keys that no entity carries, in request
// order and without duplicates.
func MissingKeys[K comparable, V any](keys []K, values []V, keyFn KeyFunc[K, V]) []K {
	found := IndexByKey(values, keyFn)
	var missing []K
	seen := make(map[K]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		if _, ok := found[k]; !ok {
			missing = append(missing, k)
		}
	}
	return missing
}

// OrderGroupsByKeys reorders grouped entities to match the order of requested keys.
// Returns a slice of slices where each inner slice contains entities for that key.
func OrderGroupsByKeys[K comparable, V any](keys []K, groups map[K][]V) [][]V {
	result := make([][]V, len(keys))
	for i, key := range keys {
		result[i] = groups[key]
	}
	return result
}
