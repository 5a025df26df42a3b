package persist

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Codec converts between the ordered record list and its on-disk bytes.
//
// DecodeRaw returns the document's elements without validating them so
// that one malformed record does not prevent the others from loading. It
// fails only when the document as a whole cannot be parsed.
type Codec interface {
	Name() string
	Extension() string
	Encode(records []Record) ([]byte, error)
	DecodeRaw(data []byte) ([]any, error)
}

// Supported codec names.
const (
	FormatJSON = "json"
	FormatTOML = "toml"
	FormatYAML = "yaml"
)

// ValidFormats returns the accepted persistence.format values.
func ValidFormats() []string {
	return []string{FormatJSON, FormatTOML, FormatYAML}
}

// CodecFor returns the codec registered under name. An empty name selects JSON.
func CodecFor(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "", FormatJSON:
		return JSONCodec{}, nil
	case FormatTOML:
		return TOMLCodec{}, nil
	case FormatYAML, "yml":
		return YAMLCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown persistence format %q (valid: %s)", name, strings.Join(ValidFormats(), ", "))
	}
}

// Decode parses data with c and validates every element. Valid records are
// returned even when err reports skipped ones.
func Decode(c Codec, data []byte) ([]Record, error) {
	elems, err := c.DecodeRaw(data)
	if err != nil {
		return nil, err
	}
	return parseRecords(elems)
}

func isBlank(data []byte) bool {
	return len(bytes.TrimSpace(data)) == 0
}

// JSONCodec stores the records as a top-level JSON array.
type JSONCodec struct{}

func (JSONCodec) Name() string      { return FormatJSON }
func (JSONCodec) Extension() string { return ".json" }

func (JSONCodec) Encode(records []Record) ([]byte, error) {
	if records == nil {
		records = []Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func (JSONCodec) DecodeRaw(data []byte) ([]any, error) {
	if isBlank(data) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var elems []any
	if err := dec.Decode(&elems); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("decode json: trailing data after session list")
	}
	return elems, nil
}

// tomlDocument wraps the list because a TOML document must be a table.
type tomlDocument struct {
	Sessions []Record `toml:"sessions"`
}

// TOMLCodec stores the records as an array of [[sessions]] tables.
type TOMLCodec struct{}

func (TOMLCodec) Name() string      { return FormatTOML }
func (TOMLCodec) Extension() string { return ".toml" }

func (TOMLCodec) Encode(records []Record) ([]byte, error) {
	return toml.Marshal(tomlDocument{Sessions: records})
}

func (TOMLCodec) DecodeRaw(data []byte) ([]any, error) {
	if isBlank(data) {
		return nil, nil
	}
	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode toml: %w", err)
	}
	raw, ok := doc["sessions"]
	if !ok {
		return nil, nil
	}
	elems, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("decode toml: sessions is %T, want array of tables", raw)
	}
	return elems, nil
}

// YAMLCodec stores the records as a top-level YAML sequence.
type YAMLCodec struct{}

func (YAMLCodec) Name() string      { return FormatYAML }
func (YAMLCodec) Extension() string { return ".yaml" }

func (YAMLCodec) Encode(records []Record) ([]byte, error) {
	if records == nil {
		records = []Record{}
	}
	return yaml.Marshal(records)
}

func (YAMLCodec) DecodeRaw(data []byte) ([]any, error) {
	if isBlank(data) {
		return nil, nil
	}
	var elems []any
	if err := yaml.Unmarshal(data, &elems); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return elems, nil
}
