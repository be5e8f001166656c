package streamcodec

import (
	"io"
	"reflect"
)

// anySchema is the any constructor (spec §4.4, §4.6, tag 0x16): the writer
// infers a concrete schema from the value, prepends that schema's
// byte-representation, then writes the value under it; the reader reflects
// the schema back out of the bytes and delegates.
type anySchema struct{}

// Any returns the any() schema.
func Any() Schema { return &anySchema{} }

func (s *anySchema) Kind() Kind    { return KindAny }
func (s *anySchema) Bytes() []byte { return []byte{byte(KindAny)} }

func (s *anySchema) validate(v any) error {
	_, err := inferSchema(v)
	return err
}

func (s *anySchema) planValue(pc *planContext, v any) (int, func(w *Writer), error) {
	inferred, err := inferSchema(v)
	if err != nil {
		return 0, nil, err
	}
	vsz, emit, err := inferred.planValue(pc, v)
	if err != nil {
		return 0, nil, err
	}
	schemaBytes := inferred.Bytes()
	return len(schemaBytes) + vsz, func(w *Writer) {
		w.WriteBytes(schemaBytes)
		emit(w)
	}, nil
}

func (s *anySchema) readValue(rc *readContext, r *Reader) (any, error) {
	schema, err := reflectBytes(r)
	if err != nil {
		return nil, err
	}
	return schema.readValue(rc, r)
}

// reflectBytes reflects one schema's byte-representation off r (spec
// §4.6's bytes→schema direction): a leading tag byte dispatches to a
// recursive descent over the tag's declared child schemas.
func reflectBytes(r *Reader) (Schema, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return nil, translateReadErr(err)
	}
	return reflectSchemaBody(r, Kind(tag))
}

// reflectSchemaBody continues reflection given a tag byte already read.
// nullable's disambiguation ("peek the next byte: 0x00 means naked
// nullable; any other byte is a child schema", spec §4.6) is implemented
// by reading that byte once and, if it is not the naked sentinel, feeding
// it back in here as the already-consumed tag of the child schema -- no
// actual lookahead/pushback on the Reader is needed since no tag is 0x00.
func reflectSchemaBody(r *Reader, tag Kind) (Schema, error) {
	switch tag {
	case KindArray:
		elem, err := reflectBytes(r)
		if err != nil {
			return nil, err
		}
		return Array(elem), nil

	case KindObject:
		n := ReadVarint(r)
		if r.err != nil {
			return nil, translateReadErr(r.err)
		}
		fields := make(map[string]Schema, n)
		for i := uint64(0); i < n; i++ {
			keyBytes, err := readLengthPrefixedBytes(r)
			if err != nil {
				return nil, err
			}
			child, err := reflectBytes(r)
			if err != nil {
				return nil, err
			}
			fields[string(keyBytes)] = child
		}
		return Object(fields), nil

	case KindString:
		return String(), nil
	case KindU8Array:
		return U8Array(), nil
	case KindBuffer:
		return Buffer(), nil

	case KindPromise:
		elem, err := reflectBytes(r)
		if err != nil {
			return nil, err
		}
		return Promise(elem), nil

	case KindIterator:
		elem, err := reflectBytes(r)
		if err != nil {
			return nil, err
		}
		return Iterator(elem), nil

	case KindBoolean:
		return Boolean(), nil
	case KindUint8:
		return Uint8(), nil
	case KindUint:
		return Uint(), nil

	case KindUnion:
		nMinus1 := ReadVarint(r)
		if r.err != nil {
			return nil, translateReadErr(r.err)
		}
		alts := make([]Schema, nMinus1+1)
		for i := range alts {
			child, err := reflectBytes(r)
			if err != nil {
				return nil, err
			}
			alts[i] = child
		}
		return Union(alts...), nil

	case KindDate:
		return Date(), nil
	case KindInt:
		return Int(), nil
	case KindFloat:
		return Float(), nil

	case KindNullable:
		b, err := r.ReadByte()
		if err != nil {
			return nil, translateReadErr(err)
		}
		if b == 0x00 {
			return Nullable(nil), nil
		}
		inner, err := reflectSchemaBody(r, Kind(b))
		if err != nil {
			return nil, err
		}
		return Nullable(inner), nil

	case KindOptional:
		inner, err := reflectBytes(r)
		if err != nil {
			return nil, err
		}
		return Optional(inner), nil

	case KindBigint:
		return Bigint(), nil

	case KindReadableStream:
		return ReadableStream(), nil

	case KindRecord:
		value, err := reflectBytes(r)
		if err != nil {
			return nil, err
		}
		return Record(value), nil

	case KindMap:
		key, err := reflectBytes(r)
		if err != nil {
			return nil, err
		}
		val, err := reflectBytes(r)
		if err != nil {
			return nil, err
		}
		return Map(key, val), nil

	case KindPotentiallyFloat:
		return PotentiallyFloatString(), nil
	case KindAny:
		return Any(), nil

	case KindCompressionTable:
		inner, err := reflectBytes(r)
		if err != nil {
			return nil, err
		}
		// The deep flag is a write-side-only concern and is never encoded
		// into schema bytes (spec §6's tag table: payload is just "child");
		// reading back false is harmless since readValue never consults it.
		return CompressionTable(inner, false), nil

	default:
		return nil, protocolErrorf("unknown schema tag byte 0x%02x", byte(tag))
	}
}

// inferSchema computes a best-effort schema for an any-typed value (spec
// §4.6's value→schema direction). Only composite values (arrays, maps,
// objects) can recurse into cycles; inferSchema tracks their identity
// while descending and raises ErrCyclicValue on revisit.
func inferSchema(v any) (Schema, error) {
	return inferSchemaVisiting(v, make(map[uintptr]bool))
}

func inferSchemaVisiting(v any, visiting map[uintptr]bool) (Schema, error) {
	if v == nil {
		return Nullable(nil), nil
	}
	switch v.(type) {
	case bool, string, DateTime, BigInt, uint64, int64, float64, FloatString, Uint8Array, ByteBuffer:
		return leafInferredSchema(v), nil
	}
	switch x := v.(type) {
	case *ByteStream:
		return ReadableStream(), nil
	case io.Reader:
		return ReadableStream(), nil
	case *Promise, PromiseSource:
		return Promise(Any()), nil
	case *Iterator, IteratorSource:
		return Iterator(Any()), nil
	case []any:
		return inferArraySchema(x, visiting)
	case MapValue:
		return inferMapSchema(x, visiting)
	case map[string]any:
		return inferObjectSchema(x, visiting)
	default:
		return nil, validationErrorf("cannot infer schema for %T", v)
	}
}

// leafInferredSchema handles the value kinds whose inferred schema depends
// only on their Go type, never on their contents; results are memoized in
// inferredSchemaCache the way fixed.go memoizes binary.Size by
// reflect.Type.
func leafInferredSchema(v any) Schema {
	t := reflect.TypeOf(v)
	if s, ok := inferredSchemaCache.Load(t); ok {
		return s
	}
	var s Schema
	switch v.(type) {
	case bool:
		s = Boolean()
	case string:
		s = String()
	case DateTime:
		s = Date()
	case BigInt:
		s = Bigint()
	case uint64:
		s = Uint()
	case int64:
		s = Int()
	case float64:
		s = Float()
	case FloatString:
		s = PotentiallyFloatString()
	case Uint8Array:
		s = U8Array()
	case ByteBuffer:
		s = Buffer()
	}
	inferredSchemaCache.Store(t, s)
	return s
}

func inferArraySchema(items []any, visiting map[uintptr]bool) (Schema, error) {
	if len(items) == 0 {
		return Array(Any()), nil
	}
	done, err := trackVisit(items, visiting)
	if err != nil {
		return nil, err
	}
	defer done()
	uniq, err := uniqueInferredSchemas(items, visiting)
	if err != nil {
		return nil, err
	}
	return Array(Union(uniq...)), nil
}

func inferMapSchema(m MapValue, visiting map[uintptr]bool) (Schema, error) {
	if len(m) == 0 {
		return Map(Any(), Any()), nil
	}
	done, err := trackVisit(m, visiting)
	if err != nil {
		return nil, err
	}
	defer done()
	keys := make([]any, len(m))
	vals := make([]any, len(m))
	for i, kv := range m {
		keys[i] = kv.Key
		vals[i] = kv.Value
	}
	keySchemas, err := uniqueInferredSchemas(keys, visiting)
	if err != nil {
		return nil, err
	}
	valSchemas, err := uniqueInferredSchemas(vals, visiting)
	if err != nil {
		return nil, err
	}
	return Map(Union(keySchemas...), Union(valSchemas...)), nil
}

func inferObjectSchema(obj map[string]any, visiting map[uintptr]bool) (Schema, error) {
	done, err := trackVisit(obj, visiting)
	if err != nil {
		return nil, err
	}
	defer done()
	fields := make(map[string]Schema, len(obj))
	for k, v := range obj {
		fs, err := inferSchemaVisiting(v, visiting)
		if err != nil {
			return nil, err
		}
		fields[k] = fs
	}
	return Object(fields), nil
}

// uniqueInferredSchemas infers a schema per value and dedupes by
// byte-representation, the "unique element schemas" spec §4.6 asks array
// and map inference to union over.
func uniqueInferredSchemas(vals []any, visiting map[uintptr]bool) ([]Schema, error) {
	var uniq []Schema
	seen := make(map[string]bool, len(vals))
	for _, v := range vals {
		s, err := inferSchemaVisiting(v, visiting)
		if err != nil {
			return nil, err
		}
		key := string(s.Bytes())
		if !seen[key] {
			seen[key] = true
			uniq = append(uniq, s)
		}
	}
	return uniq, nil
}

// trackVisit registers v's identity as "currently being inferred" for the
// duration of the returned release function, detecting the reference
// cycles inference (unlike ordinary encoding) cannot terminate on.
func trackVisit(v any, visiting map[uintptr]bool) (func(), error) {
	rv := reflect.ValueOf(v)
	if (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Map) || rv.IsNil() {
		return func() {}, nil
	}
	ptr := rv.Pointer()
	if visiting[ptr] {
		return nil, ErrCyclicValue
	}
	visiting[ptr] = true
	return func() { delete(visiting, ptr) }, nil
}
