package abi

// FieldType is the declared type of a config schema field.
type FieldType uint8

const (
	FieldString FieldType = iota
	FieldInteger
	FieldBoolean
	FieldStringArray
	FieldSelect
)

func (t FieldType) String() string {
	switch t {
	case FieldString:
		return "string"
	case FieldInteger:
		return "integer"
	case FieldBoolean:
		return "boolean"
	case FieldStringArray:
		return "string-array"
	case FieldSelect:
		return "select"
	default:
		return "unknown"
	}
}

// ConfigField describes one entry of a plugin's declared config_schema.
type ConfigField struct {
	Name        string
	Type        FieldType
	Required    bool
	Default     any
	Description string
	// Options is populated only for FieldSelect; a non-empty list
	// constrains the value to one of these strings.
	Options []string
}

// Config is a parsed, schema-validated config: field name to typed value.
type Config map[string]any
