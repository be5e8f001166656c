package streamcodec

// --- array ---

type arraySchema struct {
	elem       Schema
	bytesCache []byte
}

// Array returns the array(T) schema: varint count then count x T.
func Array(elem Schema) Schema { return &arraySchema{elem: elem} }

func (s *arraySchema) Kind() Kind { return KindArray }
func (s *arraySchema) Bytes() []byte {
	return cachedBytes(&s.bytesCache, func() []byte {
		return append([]byte{byte(KindArray)}, s.elem.Bytes()...)
	})
}
func (s *arraySchema) validate(v any) error {
	items, ok := v.([]any)
	if !ok {
		return validationErrorf("expected array, got %T", v)
	}
	for i, item := range items {
		if err := s.elem.validate(item); err != nil {
			return validationErrorf("array[%d]: %v", i, err)
		}
	}
	return nil
}
func (s *arraySchema) planValue(pc *planContext, v any) (int, func(w *Writer), error) {
	items := v.([]any)
	size := VarintSize(uint64(len(items)))
	writers := make([]func(w *Writer), len(items))
	for i, item := range items {
		isz, emit, err := s.elem.planValue(pc, item)
		if err != nil {
			return 0, nil, err
		}
		size += isz
		writers[i] = emit
	}
	return size, func(w *Writer) {
		WriteVarint(w, uint64(len(items)))
		for _, emit := range writers {
			emit(w)
		}
	}, nil
}
func (s *arraySchema) readValue(rc *readContext, r *Reader) (any, error) {
	n := ReadVarint(r)
	if r.err != nil {
		return nil, translateReadErr(r.err)
	}
	items := make([]any, 0, n)
	for i := uint64(0); i < n; i++ {
		v, err := s.elem.readValue(rc, r)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, nil
}

// --- object ---

type objectField struct {
	name   string
	schema Schema
}

type objectSchema struct {
	fields     []objectField // already sorted by sortedObjectKeys
	bytesCache []byte
}

// Object returns the object({k: T_k}) schema. Fields are sorted
// lexicographically on the wire regardless of declaration order (spec §3
// invariant); field names never appear on the wire, only in schema bytes.
func Object(fields map[string]Schema) Schema {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sorted := sortedObjectKeys(names)
	ofields := make([]objectField, len(sorted))
	for i, name := range sorted {
		ofields[i] = objectField{name: name, schema: fields[name]}
	}
	return &objectSchema{fields: ofields}
}

func (s *objectSchema) Kind() Kind { return KindObject }
func (s *objectSchema) Bytes() []byte {
	return cachedBytes(&s.bytesCache, func() []byte {
		buf := []byte{byte(KindObject)}
		buf = appendVarint(buf, uint64(len(s.fields)))
		for _, f := range s.fields {
			buf = appendVarint(buf, uint64(len(f.name)))
			buf = append(buf, f.name...)
			buf = append(buf, f.schema.Bytes()...)
		}
		return buf
	})
}
func (s *objectSchema) validate(v any) error {
	obj, ok := v.(map[string]any)
	if !ok {
		return validationErrorf("expected object, got %T", v)
	}
	for _, f := range s.fields {
		fv, present := obj[f.name]
		if !present {
			return validationErrorf("object missing field %q", f.name)
		}
		if err := f.schema.validate(fv); err != nil {
			return validationErrorf("object.%s: %v", f.name, err)
		}
	}
	return nil
}
func (s *objectSchema) planValue(pc *planContext, v any) (int, func(w *Writer), error) {
	obj := v.(map[string]any)
	size := 0
	writers := make([]func(w *Writer), len(s.fields))
	for i, f := range s.fields {
		fsz, emit, err := f.schema.planValue(pc, obj[f.name])
		if err != nil {
			return 0, nil, err
		}
		size += fsz
		writers[i] = emit
	}
	return size, func(w *Writer) {
		for _, emit := range writers {
			emit(w)
		}
	}, nil
}
func (s *objectSchema) readValue(rc *readContext, r *Reader) (any, error) {
	obj := make(map[string]any, len(s.fields))
	for _, f := range s.fields {
		v, err := f.schema.readValue(rc, r)
		if err != nil {
			return nil, err
		}
		obj[f.name] = v
	}
	return obj, nil
}

// --- record (object with dynamic keys) ---

type recordSchema struct {
	value      Schema
	bytesCache []byte
}

// Record returns the record(T) schema: varint count then count x (varint
// key-byte-length, UTF-8 key, T), in the Record value's own order.
func Record(value Schema) Schema { return &recordSchema{value: value} }

func (s *recordSchema) Kind() Kind { return KindRecord }
func (s *recordSchema) Bytes() []byte {
	return cachedBytes(&s.bytesCache, func() []byte {
		return append([]byte{byte(KindRecord)}, s.value.Bytes()...)
	})
}
func (s *recordSchema) validate(v any) error {
	rec, ok := v.(Record)
	if !ok {
		return validationErrorf("expected record, got %T", v)
	}
	for _, kv := range rec {
		key, ok := kv.Key.(string)
		if !ok {
			return validationErrorf("record key must be string, got %T", kv.Key)
		}
		if err := s.value.validate(kv.Value); err != nil {
			return validationErrorf("record[%q]: %v", key, err)
		}
	}
	return nil
}
func (s *recordSchema) planValue(pc *planContext, v any) (int, func(w *Writer), error) {
	rec := v.(Record)
	size := VarintSize(uint64(len(rec)))
	type entry struct {
		key  string
		emit func(w *Writer)
	}
	entries := make([]entry, len(rec))
	for i, kv := range rec {
		key := kv.Key.(string)
		size += VarintSize(uint64(len(key))) + len(key)
		vsz, emit, err := s.value.planValue(pc, kv.Value)
		if err != nil {
			return 0, nil, err
		}
		size += vsz
		entries[i] = entry{key: key, emit: emit}
	}
	return size, func(w *Writer) {
		WriteVarint(w, uint64(len(entries)))
		for _, e := range entries {
			WriteVarint(w, uint64(len(e.key)))
			w.WriteString(e.key)
			e.emit(w)
		}
	}, nil
}
func (s *recordSchema) readValue(rc *readContext, r *Reader) (any, error) {
	n := ReadVarint(r)
	if r.err != nil {
		return nil, translateReadErr(r.err)
	}
	rec := make(Record, 0, n)
	for i := uint64(0); i < n; i++ {
		keyBytes, err := readLengthPrefixedBytes(r)
		if err != nil {
			return nil, err
		}
		v, err := s.value.readValue(rc, r)
		if err != nil {
			return nil, err
		}
		rec = append(rec, KV{Key: string(keyBytes), Value: v})
	}
	return rec, nil
}

// --- map ---

type mapSchema struct {
	key, val   Schema
	bytesCache []byte
}

// Map returns the map(K,V) schema: varint count then count x (K, V), in
// the MapValue's own order.
func Map(key, val Schema) Schema { return &mapSchema{key: key, val: val} }

func (s *mapSchema) Kind() Kind { return KindMap }
func (s *mapSchema) Bytes() []byte {
	return cachedBytes(&s.bytesCache, func() []byte {
		buf := []byte{byte(KindMap)}
		buf = append(buf, s.key.Bytes()...)
		buf = append(buf, s.val.Bytes()...)
		return buf
	})
}
func (s *mapSchema) validate(v any) error {
	m, ok := v.(MapValue)
	if !ok {
		return validationErrorf("expected map, got %T", v)
	}
	for _, kv := range m {
		if err := s.key.validate(kv.Key); err != nil {
			return validationErrorf("map key: %v", err)
		}
		if err := s.val.validate(kv.Value); err != nil {
			return validationErrorf("map value: %v", err)
		}
	}
	return nil
}
func (s *mapSchema) planValue(pc *planContext, v any) (int, func(w *Writer), error) {
	m := v.(MapValue)
	size := VarintSize(uint64(len(m)))
	keyEmits := make([]func(w *Writer), len(m))
	valEmits := make([]func(w *Writer), len(m))
	for i, kv := range m {
		ksz, kemit, err := s.key.planValue(pc, kv.Key)
		if err != nil {
			return 0, nil, err
		}
		vsz, vemit, err := s.val.planValue(pc, kv.Value)
		if err != nil {
			return 0, nil, err
		}
		size += ksz + vsz
		keyEmits[i], valEmits[i] = kemit, vemit
	}
	return size, func(w *Writer) {
		WriteVarint(w, uint64(len(m)))
		for i := range m {
			keyEmits[i](w)
			valEmits[i](w)
		}
	}, nil
}
func (s *mapSchema) readValue(rc *readContext, r *Reader) (any, error) {
	n := ReadVarint(r)
	if r.err != nil {
		return nil, translateReadErr(r.err)
	}
	m := make(MapValue, 0, n)
	for i := uint64(0); i < n; i++ {
		k, err := s.key.readValue(rc, r)
		if err != nil {
			return nil, err
		}
		v, err := s.val.readValue(rc, r)
		if err != nil {
			return nil, err
		}
		m = append(m, KV{Key: k, Value: v})
	}
	return m, nil
}

// --- nullable ---

type nullableSchema struct {
	inner      Schema // nil for a "naked" nullable
	bytesCache []byte
}

// Nullable returns the nullable(T) schema. Passing a nil inner produces
// the naked nullable, a distinct type whose only legal value is null
// (spec §3 invariant).
func Nullable(inner Schema) Schema { return &nullableSchema{inner: inner} }

func (s *nullableSchema) Kind() Kind { return KindNullable }
func (s *nullableSchema) Bytes() []byte {
	return cachedBytes(&s.bytesCache, func() []byte {
		if s.inner == nil {
			return []byte{byte(KindNullable), 0x00}
		}
		return append([]byte{byte(KindNullable)}, s.inner.Bytes()...)
	})
}
func (s *nullableSchema) validate(v any) error {
	if isNull(v) {
		return nil
	}
	if s.inner == nil {
		return validationErrorf("naked nullable only accepts null, got %T", v)
	}
	return s.inner.validate(v)
}
func (s *nullableSchema) planValue(pc *planContext, v any) (int, func(w *Writer), error) {
	if isNull(v) {
		return planLeaf(1, func(w *Writer) { w.WriteByte(0) })
	}
	isz, emit, err := s.inner.planValue(pc, v)
	if err != nil {
		return 0, nil, err
	}
	return 1 + isz, func(w *Writer) {
		w.WriteByte(1)
		emit(w)
	}, nil
}
func (s *nullableSchema) readValue(rc *readContext, r *Reader) (any, error) {
	flag, err := r.ReadByte()
	if err != nil {
		return nil, translateReadErr(err)
	}
	switch flag {
	case 0:
		return nil, nil
	case 1:
		if s.inner == nil {
			return nil, protocolErrorf("naked nullable flag byte must be 0, got 1")
		}
		return s.inner.readValue(rc, r)
	default:
		return nil, protocolErrorf("invalid nullable flag byte 0x%02x", flag)
	}
}

// --- optional ---

type optionalSchema struct {
	inner      Schema
	bytesCache []byte
}

// Optional returns the optional(T) schema: flag byte (0=absent, 1=present)
// then T if present.
func Optional(inner Schema) Schema { return &optionalSchema{inner: inner} }

func (s *optionalSchema) Kind() Kind { return KindOptional }
func (s *optionalSchema) Bytes() []byte {
	return cachedBytes(&s.bytesCache, func() []byte {
		return append([]byte{byte(KindOptional)}, s.inner.Bytes()...)
	})
}
func (s *optionalSchema) validate(v any) error {
	if isNull(v) {
		return nil
	}
	return s.inner.validate(v)
}
func (s *optionalSchema) planValue(pc *planContext, v any) (int, func(w *Writer), error) {
	if isNull(v) {
		return planLeaf(1, func(w *Writer) { w.WriteByte(0) })
	}
	isz, emit, err := s.inner.planValue(pc, v)
	if err != nil {
		return 0, nil, err
	}
	return 1 + isz, func(w *Writer) {
		w.WriteByte(1)
		emit(w)
	}, nil
}
func (s *optionalSchema) readValue(rc *readContext, r *Reader) (any, error) {
	flag, err := r.ReadByte()
	if err != nil {
		return nil, translateReadErr(err)
	}
	switch flag {
	case 0:
		return nil, nil
	case 1:
		return s.inner.readValue(rc, r)
	default:
		return nil, protocolErrorf("invalid optional flag byte 0x%02x", flag)
	}
}

// --- union ---

type unionSchema struct {
	alts       []Schema
	bytesCache []byte
}

// Union returns the union(T0,...,Tn-1) schema. Validation tries
// alternatives in declaration order; the first that validates wins, both
// for the emitted discriminator (spec §3 invariant) and for decode
// delegation.
func Union(alts ...Schema) Schema { return &unionSchema{alts: alts} }

func (s *unionSchema) Kind() Kind { return KindUnion }
func (s *unionSchema) Bytes() []byte {
	return cachedBytes(&s.bytesCache, func() []byte {
		buf := []byte{byte(KindUnion)}
		buf = appendVarint(buf, uint64(len(s.alts)-1))
		for _, a := range s.alts {
			buf = append(buf, a.Bytes()...)
		}
		return buf
	})
}
func (s *unionSchema) validate(v any) error {
	for _, a := range s.alts {
		if a.validate(v) == nil {
			return nil
		}
	}
	return validationErrorf("value does not match any alternative of union")
}
func (s *unionSchema) planValue(pc *planContext, v any) (int, func(w *Writer), error) {
	for idx, a := range s.alts {
		if a.validate(v) != nil {
			continue
		}
		vsz, emit, err := a.planValue(pc, v)
		if err != nil {
			return 0, nil, err
		}
		size := VarintSize(uint64(idx)) + vsz
		return size, func(w *Writer) {
			WriteVarint(w, uint64(idx))
			emit(w)
		}, nil
	}
	return 0, nil, validationErrorf("value does not match any alternative of union")
}
func (s *unionSchema) readValue(rc *readContext, r *Reader) (any, error) {
	idx := ReadVarint(r)
	if r.err != nil {
		return nil, translateReadErr(r.err)
	}
	if idx >= uint64(len(s.alts)) {
		return nil, protocolErrorf("union discriminator %d out of range (n=%d)", idx, len(s.alts))
	}
	return s.alts[idx].readValue(rc, r)
}

// --- compression-table ---

type compressionTableSchema struct {
	inner      Schema
	deep       bool
	bytesCache []byte
}

// CompressionTable returns the compression-table(T, deep) schema (spec
// §4.5). The deep flag affects only the writer: it additionally dedupes
// structurally-equal values, not merely identical ones.
func CompressionTable(inner Schema, deep bool) Schema {
	return &compressionTableSchema{inner: inner, deep: deep}
}

func (s *compressionTableSchema) Kind() Kind { return KindCompressionTable }
func (s *compressionTableSchema) Bytes() []byte {
	return cachedBytes(&s.bytesCache, func() []byte {
		return append([]byte{byte(KindCompressionTable)}, s.inner.Bytes()...)
	})
}
func (s *compressionTableSchema) validate(v any) error {
	return s.inner.validate(v)
}
func (s *compressionTableSchema) planValue(pc *planContext, v any) (int, func(w *Writer), error) {
	return pc.compress.plan(pc, s.inner, s.deep, v)
}
func (s *compressionTableSchema) readValue(rc *readContext, r *Reader) (any, error) {
	return rc.decomp.read(rc, s.inner, r)
}

// --- any ---
//
// The any() schema is implemented in reflect.go since its write path needs
// infer_schema and its read path needs reflect_bytes.

// cachedBytes memoizes the result of compute() into *cache, recomputing
// only on first call. Schema byte-representations are immutable once built
// (spec §3 invariant: "Schema objects are immutable after construction"),
// so a simple once-computed cache (rather than xsync's concurrent map,
// which backs the per-Go-type inferredSchemaCache in schema_bytes.go) is
// enough here: each schema value owns its own cache slot.
func cachedBytes(cache *[]byte, compute func() []byte) []byte {
	if *cache == nil {
		*cache = compute()
	}
	return *cache
}
