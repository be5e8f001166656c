package streamcodec

import "fmt"

// SerializableError is a user-defined error payload carried over a
// promise/iterator sub-stream (spec §7's "Serializable error" category).
// Unlike the package's sentinel errors it travels as data -- schema bytes
// for its type followed by its value -- so the receiving side can decode
// it without sharing Go types with the sender. It is not session-fatal:
// delivery is scoped to the one consumer handle awaiting it.
type SerializableError struct {
	Schema Schema
	Data   any
}

func (e *SerializableError) Error() string {
	return fmt.Sprintf("streamcodec: serializable error: %v", e.Data)
}

// asSerializableError normalizes any error returned by a PromiseSource or
// IteratorSource into a SerializableError, defaulting to a string()
// schema carrying err.Error() when the caller didn't already supply one.
func asSerializableError(err error) *SerializableError {
	if se, ok := err.(*SerializableError); ok {
		return se
	}
	return &SerializableError{Schema: String(), Data: err.Error()}
}

// writeSerializableErrorPayload builds the [schema-bytes][value] body
// written after a promise/iterator error flag (spec §4.7).
func writeSerializableErrorPayload(pc *planContext, serr *SerializableError) ([]byte, error) {
	valueBytes, err := planAndEmitToBytes(pc, serr.Schema, serr.Data)
	if err != nil {
		return nil, err
	}
	schemaBytes := serr.Schema.Bytes()
	out := make([]byte, 0, len(schemaBytes)+len(valueBytes))
	out = append(out, schemaBytes...)
	out = append(out, valueBytes...)
	return out, nil
}

// readSerializableError reflects an inline schema off r and decodes a
// value under it into a SerializableError, the read-side mirror of
// writeSerializableErrorPayload.
func readSerializableError(rc *readContext, r *Reader) (*SerializableError, error) {
	schema, err := reflectBytes(r)
	if err != nil {
		return nil, err
	}
	data, err := schema.readValue(rc, r)
	if err != nil {
		return nil, err
	}
	return &SerializableError{Schema: schema, Data: data}, nil
}
