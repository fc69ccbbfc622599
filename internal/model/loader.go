// Package model loads and validates asset model documents.
package model

import (
	"fmt"
	"io"
	"sort"

	"github.com/atlas-desktop/unitsim/pkg/types"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load reads a model document (JSON or YAML, by extension) from path.
func Load(path string) (*types.Model, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, &types.ConfigurationError{Field: "model", Reason: "cannot read model document", Err: err}
	}

	m, err := decode(v)
	if err != nil {
		return nil, err
	}
	m.Source = path
	return m, nil
}

// LoadReader reads a model document in the given format ("json", "yaml").
func LoadReader(r io.Reader, format string) (*types.Model, error) {
	v := viper.New()
	v.SetConfigType(format)
	if err := v.ReadConfig(r); err != nil {
		return nil, &types.ConfigurationError{Field: "model", Reason: "cannot parse model document", Err: err}
	}
	return decode(v)
}

// strict rejects unknown keys and missing fields. Missing parameters are
// never defaulted to zero.
func strict(c *mapstructure.DecoderConfig) {
	c.ErrorUnused = true
	c.ErrorUnset = true
}

func decode(v *viper.Viper) (*types.Model, error) {
	m := &types.Model{Assets: make(map[string]*types.AssetModel)}

	if !v.IsSet("simulation") {
		return nil, &types.ConfigurationError{Field: "simulation", Reason: "missing"}
	}
	if err := v.UnmarshalKey("simulation", &m.Simulation, viper.DecoderConfigOption(strict)); err != nil {
		return nil, &types.ConfigurationError{Field: "simulation", Reason: "cannot decode", Err: err}
	}

	names := make([]string, 0)
	for name := range v.GetStringMap("assets") {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		asset, err := decodeAsset(v, name)
		if err != nil {
			return nil, err
		}
		m.Assets[name] = asset
	}

	if err := Validate(m); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeAsset(v *viper.Viper, name string) (*types.AssetModel, error) {
	key := "assets." + name
	asset := &types.AssetModel{
		Name: name,
		Kind: types.Kind(v.GetString(key + ".kind")),
	}

	inputs := types.NewInputs(asset.Kind)
	if inputs == nil {
		return nil, &types.ConfigurationError{
			Asset:  name,
			Field:  "kind",
			Reason: fmt.Sprintf("unknown asset kind %q", string(asset.Kind)),
		}
	}

	sections := []struct {
		field  string
		target interface{}
	}{
		{"config", &asset.Config},
		{"risks", &asset.Risks},
		{"inputs", inputs},
	}
	for _, s := range sections {
		if !v.IsSet(key + "." + s.field) {
			return nil, &types.ConfigurationError{Asset: name, Field: s.field, Reason: "missing"}
		}
		if err := v.UnmarshalKey(key+"."+s.field, s.target, viper.DecoderConfigOption(strict)); err != nil {
			return nil, &types.ConfigurationError{Asset: name, Field: s.field, Reason: "cannot decode", Err: err}
		}
	}
	asset.Inputs = inputs

	return asset, nil
}
