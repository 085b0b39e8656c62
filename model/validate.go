package model

import (
	"errors"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError lists the request fields that are missing or malformed.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "missing or invalid field(s): " + strings.Join(e.Fields, ", ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks the fields required to create a Pokemon: a non-empty name,
// at least one type and all six base stats. A zero stat counts as missing.
func Validate(p Pokemon) error {
	return check(validate.Struct(p), p.Name)
}

// ValidatePatch checks that a patch is well formed: non-empty type entries,
// positive stats and storable locale keys.
func ValidatePatch(p PokemonPatch) error {
	return check(validate.Struct(p), p.Name)
}

// badLocales lists the locale keys that cannot be stored as a document
// field name: empty, or containing '.' or '$'.
func badLocales(n Name) []string {
	var fields []string
	for locale := range n {
		if locale == "" || strings.ContainsAny(locale, ".$") {
			fields = append(fields, "name."+locale)
		}
	}
	sort.Strings(fields)
	return fields
}

// ValidateCombat requires both snapshots to reference a Pokemon id.
func ValidateCombat(c Combat) error {
	var fields []string
	if c.First.ID <= 0 {
		fields = append(fields, "first.id")
	}
	if c.Second.ID <= 0 {
		fields = append(fields, "second.id")
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func check(err error, name Name) error {
	fields := badLocales(name)
	if err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			fields = append(fields, fieldPath(fe))
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// fieldPath drops the struct name from the namespace: "Pokemon.base.HP"
// becomes "base.HP".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}
	if ns == "" {
		return fe.Field()
	}
	return ns
}
