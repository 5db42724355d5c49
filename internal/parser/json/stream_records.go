package json

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"boosterdb/pkg/records"
)

// StreamRecords parses a table snapshot from r and sends each record to out.
//
// Accepted layouts:
//   - A root JSON array: each element is one record. Elements that are not
//     objects (null, numbers, strings, arrays) are emitted as records.Malformed
//     placeholders so they keep their position and count.
//   - A root object whose first array field holds the records (envelope pattern).
//     The remaining fields of the envelope are skipped.
//   - A root object with no array field: that object is the single record.
//   - Any of the above followed by newline-delimited objects (JSONL tail).
//
// Records keep the field order of the source document and numbers are kept as
// json.Number. onParseErr, when non-nil, receives the 1-based position of the
// record that failed to parse before the error is returned.
func StreamRecords(
	ctx context.Context,
	r io.Reader,
	out chan<- *records.Record,
	onParseErr func(pos int, err error),
) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	pos := 0
	report := func(err error) error {
		if onParseErr != nil {
			onParseErr(pos+1, err)
		}
		return err
	}
	emit := func(rec *records.Record) error {
		pos++
		select {
		case out <- rec:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return report(fmt.Errorf("json: read first token: %w", err))
	}

	d, ok := tok.(json.Delim)
	if !ok {
		return report(fmt.Errorf("json: unsupported root token %T (want object or array)", tok))
	}

	switch d {
	case '[':
		if err := streamArray(ctx, dec, emit, report); err != nil {
			return err
		}
		if err := expectDelim(dec, ']'); err != nil {
			return report(err)
		}

	case '{':
		single, err := streamEnvelopeOrSingle(ctx, dec, emit, report)
		if err != nil {
			return err
		}
		if err := expectDelim(dec, '}'); err != nil {
			return report(err)
		}
		if single != nil {
			if err := emit(single); err != nil {
				return err
			}
		}

	default:
		return report(fmt.Errorf("json: unsupported root delimiter %q", d))
	}

	return streamTrailing(ctx, dec, emit, report)
}

// ReadAll decodes every record in r. It is a convenience wrapper around
// StreamRecords for snapshots that fit in memory.
func ReadAll(ctx context.Context, r io.Reader) ([]*records.Record, error) {
	out := make(chan *records.Record, 64)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		errc <- StreamRecords(ctx, r, out, nil)
	}()

	var recs []*records.Record
	for rec := range out {
		recs = append(recs, rec)
	}
	if err := <-errc; err != nil {
		return nil, err
	}
	return recs, nil
}

func streamTrailing(
	ctx context.Context,
	dec *json.Decoder,
	emit func(*records.Record) error,
	report func(error) error,
) error {
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return report(fmt.Errorf("json: read trailing object: %w", err))
		}
		if tok != json.Delim('{') {
			return report(fmt.Errorf("json: trailing value is not an object (got %v)", tok))
		}
		rec, err := decodeObject(dec)
		if err != nil {
			return report(fmt.Errorf("json: decode trailing object: %w", err))
		}
		if err := emit(rec); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// streamArray emits the object elements of the current array ('[' already consumed).
func streamArray(
	ctx context.Context,
	dec *json.Decoder,
	emit func(*records.Record) error,
	report func(error) error,
) error {
	for dec.More() {
		v, err := decodeValue(dec)
		if err != nil {
			return report(fmt.Errorf("json: decode array element: %w", err))
		}
		rec, ok := v.(*records.Record)
		if !ok {
			rec = records.Malformed(fmt.Errorf("json: element is %s, not an object", kindOf(v)))
		}
		if err := emit(rec); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

// streamEnvelopeOrSingle walks a root object ('{' already consumed). If a field
// holds an array, its elements are streamed as records and nil is returned.
// Otherwise the materialized object is returned for the caller to emit.
func streamEnvelopeOrSingle(
	ctx context.Context,
	dec *json.Decoder,
	emit func(*records.Record) error,
	report func(error) error,
) (*records.Record, error) {
	single := records.New(8)

	for dec.More() {
		key, err := readKey(dec)
		if err != nil {
			return nil, report(err)
		}

		valTok, err := dec.Token()
		if err != nil {
			return nil, report(fmt.Errorf("json: read object value token: %w", err))
		}

		if valTok == json.Delim('[') {
			if err := streamArray(ctx, dec, emit, report); err != nil {
				return nil, err
			}
			if err := expectDelim(dec, ']'); err != nil {
				return nil, report(err)
			}
			for dec.More() {
				if _, err := dec.Token(); err != nil {
					return nil, report(fmt.Errorf("json: skip envelope key: %w", err))
				}
				if _, err := decodeValue(dec); err != nil {
					return nil, report(fmt.Errorf("json: skip envelope value: %w", err))
				}
			}
			return nil, nil
		}

		v, err := valueFromToken(dec, valTok)
		if err != nil {
			return nil, report(err)
		}
		single.Set(key, v)
	}

	return single, nil
}

func kindOf(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case bool:
		return "a boolean"
	case json.Number:
		return "a number (" + v.String() + ")"
	case string:
		return "a string"
	case []any:
		return "an array"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return valueFromToken(dec, tok)
}

// valueFromToken materializes the value whose first token is tok. Objects
// become *records.Record so nested field order survives.
func valueFromToken(dec *json.Decoder, tok json.Token) (any, error) {
	d, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}

	switch d {
	case '{':
		return decodeObject(dec)
	case '[':
		arr := []any{}
		for dec.More() {
			v, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		if err := expectDelim(dec, ']'); err != nil {
			return nil, err
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("json: unexpected delimiter %q", d)
	}
}

// decodeObject reads the members of an object ('{' already consumed) through
// its closing brace.
func decodeObject(dec *json.Decoder) (*records.Record, error) {
	rec := records.New(8)
	for dec.More() {
		key, err := readKey(dec)
		if err != nil {
			return nil, err
		}
		v, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		rec.Set(key, v)
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	return rec, nil
}

func readKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", fmt.Errorf("json: read object key: %w", err)
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("json: object key not a string (got %T)", tok)
	}
	return key, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("json: read %q: %w", want, err)
	}
	if tok != want {
		return fmt.Errorf("json: expected %q, got %v", want, tok)
	}
	return nil
}
