// Package payload decodes schema-less JSON messages into opaque values that
// keep object member order.
//
// A Value is one of: nil, bool, float64, string, []Value or *Object.
package payload

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/go-json-experiment/json/jsontext"
)

// Value valor JSON opaco
type Value = any

// Object objeto JSON com ordem de inserção preservada
type Object struct {
	keys   []string
	values map[string]Value
}

// NewObject cria objeto vazio
func NewObject() *Object {
	return &Object{values: make(map[string]Value)}
}

// Set define um membro; chaves novas vão para o final
func (o *Object) Set(key string, v Value) *Object {
	if _, exists := o.values[key]; !exists {
		o.keys = append(o.keys, key)
	}
	o.values[key] = v
	return o
}

// Get retorna o membro e se ele existe
func (o *Object) Get(key string) (Value, bool) {
	if o == nil {
		return nil, false
	}
	v, ok := o.values[key]
	return v, ok
}

// Keys retorna as chaves em ordem de inserção
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	keys := make([]string, len(o.keys))
	copy(keys, o.keys)
	return keys
}

// Len número de membros
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

var errTrailingData = errors.New("payload: trailing data after top-level value")

// Decode decodifica um documento JSON completo
func Decode(data []byte) (Value, error) {
	dec := jsontext.NewDecoder(bytes.NewReader(data))
	v, err := decodeValue(dec)
	if err != nil {
		return nil, fmt.Errorf("payload: decode: %w", err)
	}
	if _, err := dec.ReadToken(); err != io.EOF {
		return nil, errTrailingData
	}
	return v, nil
}

func decodeValue(dec *jsontext.Decoder) (Value, error) {
	tok, err := dec.ReadToken()
	if err != nil {
		return nil, err
	}

	switch tok.Kind() {
	case 'n':
		return nil, nil
	case 't':
		return true, nil
	case 'f':
		return false, nil
	case '"':
		return tok.String(), nil
	case '0':
		return tok.Float(), nil
	case '{':
		obj := NewObject()
		for dec.PeekKind() != '}' {
			keyTok, err := dec.ReadToken()
			if err != nil {
				return nil, err
			}
			key := keyTok.String()
			v, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			obj.Set(key, v)
		}
		if _, err := dec.ReadToken(); err != nil {
			return nil, err
		}
		return obj, nil
	case '[':
		arr := make([]Value, 0)
		for dec.PeekKind() != ']' {
			v, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		if _, err := dec.ReadToken(); err != nil {
			return nil, err
		}
		return arr, nil
	}

	return nil, fmt.Errorf("unexpected token %v", tok.Kind())
}

// MarshalJSON serializa mantendo a ordem dos membros
func (o *Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := jsontext.NewEncoder(&buf)
	if err := encodeValue(enc, o); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Encode serializa qualquer Value
func Encode(v Value) ([]byte, error) {
	var buf bytes.Buffer
	enc := jsontext.NewEncoder(&buf)
	if err := encodeValue(enc, v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func encodeValue(enc *jsontext.Encoder, v Value) error {
	switch t := v.(type) {
	case nil:
		return enc.WriteToken(jsontext.Null)
	case bool:
		return enc.WriteToken(jsontext.Bool(t))
	case float64:
		return enc.WriteToken(jsontext.Float(t))
	case string:
		return enc.WriteToken(jsontext.String(t))
	case []Value:
		if err := enc.WriteToken(jsontext.ArrayStart); err != nil {
			return err
		}
		for _, item := range t {
			if err := encodeValue(enc, item); err != nil {
				return err
			}
		}
		return enc.WriteToken(jsontext.ArrayEnd)
	case *Object:
		if err := enc.WriteToken(jsontext.ObjectStart); err != nil {
			return err
		}
		if t != nil {
			for _, key := range t.keys {
				if err := enc.WriteToken(jsontext.String(key)); err != nil {
					return err
				}
				if err := encodeValue(enc, t.values[key]); err != nil {
					return err
				}
			}
		}
		return enc.WriteToken(jsontext.ObjectEnd)
	}
	return fmt.Errorf("payload: unsupported value type %T", v)
}
