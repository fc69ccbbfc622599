package model

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"

	"github.com/atlas-desktop/unitsim/pkg/types"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their document keys.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("asset_kind", validateAssetKind)
	_ = v.RegisterValidation("finite", validateFinite)
	return v
}

func validateAssetKind(fl validator.FieldLevel) bool {
	return types.Kind(fl.Field().String()).Valid()
}

func validateFinite(fl validator.FieldLevel) bool {
	f := fl.Field().Float()
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Validate checks a model document before any simulation starts.
// Every failure is a *types.ConfigurationError.
func Validate(m *types.Model) error {
	if m == nil || len(m.Assets) == 0 {
		return &types.ConfigurationError{Field: "assets", Reason: "at least one asset is required"}
	}
	if err := validate.Struct(m.Simulation); err != nil {
		return toConfigurationError("", err)
	}

	names := make([]string, 0, len(m.Assets))
	for name := range m.Assets {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := ValidateAsset(name, m.Assets[name]); err != nil {
			return err
		}
	}
	return nil
}

// ValidateAsset checks one asset model, including its kind-specific inputs.
func ValidateAsset(name string, a *types.AssetModel) error {
	if a == nil {
		return &types.ConfigurationError{Asset: name, Reason: "asset is empty"}
	}
	if err := validate.Struct(a); err != nil {
		return toConfigurationError(name, err)
	}
	if a.Inputs == nil {
		return &types.ConfigurationError{Asset: name, Field: "inputs", Reason: "missing"}
	}
	if a.Inputs.Kind() != a.Kind {
		return &types.ConfigurationError{
			Asset:  name,
			Field:  "inputs",
			Reason: fmt.Sprintf("inputs for %s given to a %s asset", a.Inputs.Kind(), a.Kind),
		}
	}
	if err := validate.Struct(a.Inputs); err != nil {
		return toConfigurationError(name, err)
	}
	return nil
}

func toConfigurationError(asset string, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &types.ConfigurationError{Asset: asset, Reason: "validation failed", Err: err}
	}

	reasons := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		reasons = append(reasons, fmt.Sprintf("%s failed %s", fieldPath(fe), describe(fe)))
	}
	return &types.ConfigurationError{
		Asset:  asset,
		Field:  fieldPath(verrs[0]),
		Reason: strings.Join(reasons, "; "),
	}
}

// fieldPath drops the root struct name from the validator namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}
