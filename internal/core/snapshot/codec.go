package snapshot

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// FormatVersion is the layout version written under the "v" key.
const FormatVersion = 1

const (
	keyVersion  = "v"
	keyID       = "id"
	keyTime     = "ts"
	keyMessages = "messages"
	keyMetadata = "metadata"

	keyType    = "type"
	keyContent = "content"
	keyName    = "name"
	keyFields  = "fields"
)

// Encode converts s into nested maps, sequences and scalars. The result only
// contains nil, bool, string, float64, []any and map[string]any values.
func Encode(s *Snapshot) (map[string]any, error) {
	if s == nil {
		return nil, &EncodingError{Err: ErrNilSnapshot}
	}

	out := map[string]any{keyVersion: float64(FormatVersion)}
	if _, err := checkString(keyID, s.ID); err != nil {
		return nil, encodingErr(err)
	}
	if s.ID != "" {
		out[keyID] = s.ID
	}
	if !s.CreatedAt.IsZero() {
		out[keyTime] = s.CreatedAt.UTC().Format(time.RFC3339Nano)
	}

	msgs := make([]any, 0, len(s.Messages))
	for i, m := range s.Messages {
		enc, err := encodeMessage(index(keyMessages, i), m)
		if err != nil {
			return nil, encodingErr(err)
		}
		msgs = append(msgs, enc)
	}
	out[keyMessages] = msgs

	if len(s.Metadata) > 0 {
		md, err := canonicalMap(keyMetadata, s.Metadata)
		if err != nil {
			return nil, encodingErr(err)
		}
		out[keyMetadata] = md
	}
	return out, nil
}

func encodeMessage(path string, m Message) (map[string]any, error) {
	if !m.Role.Valid() {
		return nil, &pathError{path: field(path, keyType), err: fmt.Errorf("%w: %q", ErrUnknownRole, m.Role)}
	}
	for _, f := range [...]struct{ key, val string }{{keyContent, m.Content}, {keyID, m.ID}, {keyName, m.Name}} {
		if _, err := checkString(field(path, f.key), f.val); err != nil {
			return nil, err
		}
	}
	out := map[string]any{
		keyType:    string(m.Role),
		keyContent: m.Content,
	}
	if m.ID != "" {
		out[keyID] = m.ID
	}
	if m.Name != "" {
		out[keyName] = m.Name
	}
	if len(m.Fields) > 0 {
		fields, err := canonicalMap(field(path, keyFields), m.Fields)
		if err != nil {
			return nil, err
		}
		out[keyFields] = fields
	}
	return out, nil
}

// Decode rebuilds a Snapshot from its structured form. A string or byte slice
// is parsed as JSON first, which covers blobs the storage layer handed back as
// text.
func Decode(v any) (*Snapshot, error) {
	root, err := structured("", v)
	if err != nil {
		return nil, decodingErr(err)
	}
	if err := checkVersion(root); err != nil {
		return nil, decodingErr(err)
	}

	s := &Snapshot{}
	if s.ID, err = optionalString(root, "", keyID); err != nil {
		return nil, decodingErr(err)
	}
	ts, err := optionalString(root, "", keyTime)
	if err != nil {
		return nil, decodingErr(err)
	}
	if ts != "" {
		if s.CreatedAt, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, &DecodingError{Path: keyTime, Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
		}
	}

	raw, ok := root[keyMessages]
	if !ok {
		return nil, &DecodingError{Path: keyMessages, Err: fmt.Errorf("%w: missing field", ErrMalformed)}
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, &DecodingError{Path: keyMessages, Err: fmt.Errorf("%w: want sequence, got %T", ErrMalformed, raw)}
	}
	if len(list) > 0 {
		s.Messages = make([]Message, 0, len(list))
	}
	for i, item := range list {
		m, err := decodeMessage(index(keyMessages, i), item)
		if err != nil {
			return nil, decodingErr(err)
		}
		s.Messages = append(s.Messages, m)
	}

	if raw, ok := root[keyMetadata]; ok && raw != nil {
		md, ok := raw.(map[string]any)
		if !ok {
			return nil, &DecodingError{Path: keyMetadata, Err: fmt.Errorf("%w: want map, got %T", ErrMalformed, raw)}
		}
		if len(md) > 0 {
			s.Metadata = md
		}
	}
	return s, nil
}

func decodeMessage(path string, v any) (Message, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return Message{}, &pathError{path: path, err: fmt.Errorf("%w: want map, got %T", ErrMalformed, v)}
	}

	tag, ok := obj[keyType].(string)
	if !ok {
		return Message{}, &pathError{path: field(path, keyType), err: fmt.Errorf("%w: missing role tag", ErrMalformed)}
	}
	role := Role(tag)
	if !role.Valid() {
		return Message{}, &pathError{path: field(path, keyType), err: fmt.Errorf("%w: %q", ErrUnknownRole, tag)}
	}
	content, ok := obj[keyContent].(string)
	if !ok {
		return Message{}, &pathError{path: field(path, keyContent), err: fmt.Errorf("%w: content must be a string", ErrMalformed)}
	}

	m := Message{Role: role, Content: content}
	var err error
	if m.ID, err = optionalString(obj, path, keyID); err != nil {
		return Message{}, err
	}
	if m.Name, err = optionalString(obj, path, keyName); err != nil {
		return Message{}, err
	}
	if raw, ok := obj[keyFields]; ok && raw != nil {
		fields, ok := raw.(map[string]any)
		if !ok {
			return Message{}, &pathError{path: field(path, keyFields), err: fmt.Errorf("%w: want map, got %T", ErrMalformed, raw)}
		}
		if len(fields) > 0 {
			m.Fields = fields
		}
	}
	return m, nil
}

// EncodeMetadata converts auxiliary checkpoint metadata to its structured
// form. Empty metadata encodes to nil.
func EncodeMetadata(md Metadata) (map[string]any, error) {
	if len(md) == 0 {
		return nil, nil
	}
	out, err := canonicalMap("", md)
	if err != nil {
		return nil, encodingErr(err)
	}
	return out, nil
}

// DecodeMetadata is the inverse of EncodeMetadata. A nil value decodes to nil.
func DecodeMetadata(v any) (Metadata, error) {
	if v == nil {
		return nil, nil
	}
	m, err := structured("", v)
	if err != nil {
		return nil, decodingErr(err)
	}
	if len(m) == 0 {
		return nil, nil
	}
	return Metadata(m), nil
}

// Marshal encodes s and renders the structured form as JSON text.
func Marshal(s *Snapshot) ([]byte, error) {
	enc, err := Encode(s)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(enc)
	if err != nil {
		return nil, &EncodingError{Err: err}
	}
	return data, nil
}

// Unmarshal parses JSON text produced by Marshal.
func Unmarshal(data []byte) (*Snapshot, error) {
	v, err := parseJSON(data)
	if err != nil {
		return nil, &DecodingError{Err: err}
	}
	return Decode(v)
}

// MarshalMetadata renders metadata as JSON text; empty metadata yields nil.
func MarshalMetadata(md Metadata) ([]byte, error) {
	enc, err := EncodeMetadata(md)
	if err != nil || enc == nil {
		return nil, err
	}
	data, err := json.Marshal(enc)
	if err != nil {
		return nil, &EncodingError{Err: err}
	}
	return data, nil
}

// UnmarshalMetadata parses JSON text produced by MarshalMetadata. Empty input
// and JSON null decode to nil.
func UnmarshalMetadata(data []byte) (Metadata, error) {
	if len(data) == 0 {
		return nil, nil
	}
	v, err := parseJSON(data)
	if err != nil {
		return nil, &DecodingError{Err: err}
	}
	return DecodeMetadata(v)
}

// structured returns v as a canonical map. Text input is parsed once; a
// second layer of encoding is not unwrapped.
func structured(path string, v any) (map[string]any, error) {
	switch x := v.(type) {
	case nil:
		return nil, &pathError{path: path, err: fmt.Errorf("%w: missing value", ErrMalformed)}
	case string:
		return reparsed(path, []byte(x))
	case []byte:
		return reparsed(path, x)
	case json.RawMessage:
		return reparsed(path, x)
	}

	c, err := canonical(path, v)
	if err != nil {
		return nil, &pathError{path: path, err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}
	m, ok := c.(map[string]any)
	if !ok {
		return nil, &pathError{path: path, err: fmt.Errorf("%w: want map, got %T", ErrMalformed, v)}
	}
	return m, nil
}

func reparsed(path string, data []byte) (map[string]any, error) {
	v, err := parseJSON(data)
	if err != nil {
		return nil, &pathError{path: path, err: err}
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, &pathError{path: path, err: fmt.Errorf("%w: re-parsed text is %T, not a map", ErrMalformed, v)}
	}
	return m, nil
}

func parseJSON(data []byte) (any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return v, nil
}

func checkVersion(root map[string]any) error {
	raw, ok := root[keyVersion]
	if !ok {
		return &pathError{path: keyVersion, err: fmt.Errorf("%w: missing format version", ErrMalformed)}
	}
	v, ok := raw.(float64)
	if !ok || v != math.Trunc(v) || v < 1 {
		return &pathError{path: keyVersion, err: fmt.Errorf("%w: bad format version %v", ErrMalformed, raw)}
	}
	if v > FormatVersion {
		return &pathError{path: keyVersion, err: fmt.Errorf("%w: %v", ErrUnsupportedVersion, v)}
	}
	return nil
}

func optionalString(obj map[string]any, path, key string) (string, error) {
	raw, ok := obj[key]
	if !ok || raw == nil {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", &pathError{path: field(path, key), err: fmt.Errorf("%w: want string, got %T", ErrMalformed, raw)}
	}
	return s, nil
}
