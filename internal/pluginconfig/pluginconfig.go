// Package pluginconfig implements per-plugin configuration: loading a
// plugin's config.toml, validating it against the schema the plugin itself
// declares, filling in defaults for absent fields, and generating a
// template config file for `plugin config --init`.
package pluginconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/xeipuuv/gojsonschema"

	"github.com/todoplug/hostrt/internal/abi"
	"github.com/todoplug/hostrt/internal/apperr"
	"github.com/todoplug/hostrt/internal/logger"
)

const configFilename = "config.toml"

// Load reads dir/config.toml (if present), validates it against schema, and
// returns the resulting config with defaults filled in for any field the
// file omitted. A missing file is not an error when no field is Required;
// a required field with no default and no value is a ConfigError.
func Load(pluginName, dir string, schema []abi.ConfigField) (abi.Config, error) {
	log := logger.Config()
	path := filepath.Join(dir, configFilename)

	raw := map[string]any{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if decodeErr := toml.Unmarshal(data, &raw); decodeErr != nil {
			return nil, apperr.ConfigError(pluginName, fmt.Sprintf("parsing %s", path), decodeErr)
		}
	case os.IsNotExist(err):
		// no config file; proceed with defaults only
	default:
		return nil, apperr.ConfigError(pluginName, fmt.Sprintf("reading %s", path), err)
	}

	cfg := fillDefaults(raw, schema)

	if err := validate(pluginName, cfg, schema); err != nil {
		return nil, err
	}

	log.Debug().Str("plugin", pluginName).Int("fields", len(cfg)).Msg("plugin config loaded")
	return cfg, nil
}

// fillDefaults copies raw into a new map, adding schema's declared defaults
// for any field raw does not already set.
func fillDefaults(raw map[string]any, schema []abi.ConfigField) abi.Config {
	cfg := make(abi.Config, len(raw))
	for k, v := range raw {
		cfg[k] = v
	}
	for _, f := range schema {
		if _, present := cfg[f.Name]; !present && f.Default != nil {
			cfg[f.Name] = f.Default
		}
	}
	return cfg
}

// validate translates schema into a JSON Schema document and checks cfg
// against it, enforcing the plugin's declared config fields.
func validate(pluginName string, cfg abi.Config, schema []abi.ConfigField) error {
	doc := toJSONSchema(schema)

	schemaLoader := gojsonschema.NewGoLoader(doc)
	docLoader := gojsonschema.NewGoLoader(map[string]any(cfg))

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return apperr.ConfigError(pluginName, "schema validation failed to run", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return apperr.ConfigError(pluginName, fmt.Sprintf("config does not satisfy schema: %v", msgs), nil)
	}
	return nil
}

// toJSONSchema builds a JSON Schema object document from a ConfigField list.
func toJSONSchema(schema []abi.ConfigField) map[string]any {
	properties := make(map[string]any, len(schema))
	var required []string

	for _, f := range schema {
		prop := map[string]any{}
		switch f.Type {
		case abi.FieldString:
			prop["type"] = "string"
		case abi.FieldInteger:
			prop["type"] = "integer"
		case abi.FieldBoolean:
			prop["type"] = "boolean"
		case abi.FieldStringArray:
			prop["type"] = "array"
			prop["items"] = map[string]any{"type": "string"}
		case abi.FieldSelect:
			prop["type"] = "string"
			if len(f.Options) > 0 {
				opts := make([]any, len(f.Options))
				for i, o := range f.Options {
					opts[i] = o
				}
				prop["enum"] = opts
			}
		}
		properties[f.Name] = prop
		if f.Required {
			required = append(required, f.Name)
		}
	}

	doc := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	return doc
}

// WriteTemplate generates dir/config.toml populated with each field's
// default (or a type-appropriate zero value when no default is declared),
// for `plugin config --init <name>`. It refuses to overwrite an existing
// file.
func WriteTemplate(pluginName, dir string, schema []abi.ConfigField) error {
	path := filepath.Join(dir, configFilename)
	if _, err := os.Stat(path); err == nil {
		return apperr.ConfigError(pluginName, fmt.Sprintf("%s already exists, refusing to overwrite", path), nil)
	}

	cfg := make(abi.Config, len(schema))
	for _, f := range schema {
		if f.Default != nil {
			cfg[f.Name] = f.Default
			continue
		}
		cfg[f.Name] = zeroValue(f.Type)
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return apperr.ConfigError(pluginName, "marshaling template config", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return apperr.ConfigError(pluginName, fmt.Sprintf("writing %s", path), err)
	}
	return nil
}

func zeroValue(t abi.FieldType) any {
	switch t {
	case abi.FieldInteger:
		return 0
	case abi.FieldBoolean:
		return false
	case abi.FieldStringArray:
		return []string{}
	default:
		return ""
	}
}
