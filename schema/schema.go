// Package schema upgrades raw Pokemon documents to the canonical record shape.
//
// Two shapes exist in the wild:
//
//	v1 (flat):   {"id": 1, "name": "Samos", "type": "Human",
//	              "hp": "40", "attack": 25, "defense": 25,
//	              "SpAttack": 90, "SpDefense": 60, "speed": 150}
//	v2 (nested): {"id": 1, "name": {"english": "Samos", ...}, "type": ["Human"],
//	              "base": {"HP": 40, "Attack": 25, "Defense": 25,
//	                       "Sp. Attack": 90, "Sp. Defense": 60, "Speed": 150}}
//
// Migrate turns either into v2. Stat values may be numbers or numeric strings.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/stevemurr/pokedex-api/model"
)

const (
	// V1 is the flat layout with a single-string name and top-level stats.
	V1 = 1
	// V2 is the canonical layout with a locale map and a nested base block.
	V2 = 2
)

// flatStats maps v1 stat keys to their v2 base key.
var flatStats = map[string]string{
	"hp":        "HP",
	"attack":    "Attack",
	"defense":   "Defense",
	"SpAttack":  "Sp. Attack",
	"SpDefense": "Sp. Defense",
	"speed":     "Speed",
}

// Version reports which layout doc uses.
func Version(doc map[string]any) int {
	if _, ok := doc["name"].(string); ok {
		return V1
	}
	if _, ok := doc["type"].(string); ok {
		return V1
	}
	for k := range flatStats {
		if _, ok := doc[k]; ok {
			return V1
		}
	}
	return V2
}

// Migrate returns a v2 copy of doc. Fields it does not know are kept as-is.
// Only the fields present in doc appear in the result, so a partial update
// body stays partial.
func Migrate(doc map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(doc))
	var bad []string

	var base map[string]any
	for k, v := range doc {
		if _, flat := flatStats[k]; flat {
			continue
		}
		switch k {
		case "id":
			if s, ok := v.(string); ok {
				n, err := Int(s)
				if err != nil {
					bad = append(bad, "id")
					continue
				}
				v = n
			}
			out[k] = v
		case "name":
			if s, ok := v.(string); ok {
				name := make(map[string]any, len(model.Locales))
				for _, locale := range model.Locales {
					name[locale] = s
				}
				v = name
			}
			out[k] = v
		case "type":
			if s, ok := v.(string); ok {
				v = []any{s}
			}
			out[k] = v
		case "base":
			m, ok := v.(map[string]any)
			if !ok {
				out[k] = v
				continue
			}
			base = make(map[string]any, len(m))
			for sk, sv := range m {
				n, err := Int(sv)
				if err != nil {
					bad = append(bad, "base."+sk)
					continue
				}
				base[sk] = n
			}
		default:
			out[k] = v
		}
	}

	for flat, nested := range flatStats {
		v, ok := doc[flat]
		if !ok {
			continue
		}
		if base == nil {
			base = make(map[string]any, len(flatStats))
		}
		if _, set := base[nested]; set {
			continue
		}
		n, err := Int(v)
		if err != nil {
			bad = append(bad, flat)
			continue
		}
		base[nested] = n
	}
	if base != nil {
		out["base"] = base
	}

	if len(bad) > 0 {
		return nil, &model.ValidationError{Fields: bad}
	}
	return out, nil
}

// Decode migrates doc and decodes it into v. Type mismatches are reported as
// a *model.ValidationError naming the offending field.
func Decode(doc map[string]any, v any) error {
	migrated, err := Migrate(doc)
	if err != nil {
		return err
	}
	return remarshal(migrated, v)
}

func remarshal(doc map[string]any, v any) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return &model.ValidationError{Fields: []string{typeErr.Field}}
		}
		return err
	}
	return nil
}

// DecodePokemons parses a JSON array of Pokemon documents in either layout.
// Every record needs a positive id not used by an earlier record. legacy
// counts the records that were stored in the v1 layout.
func DecodePokemons(data []byte) (ps []model.Pokemon, legacy int, err error) {
	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, 0, err
	}
	ps = make([]model.Pokemon, 0, len(raw))
	seen := make(map[int]struct{}, len(raw))
	for i, doc := range raw {
		var p model.Pokemon
		if err := Decode(doc, &p); err != nil {
			return nil, 0, fmt.Errorf("record %d: %w", i, err)
		}
		if _, dup := seen[p.ID]; dup || p.ID <= 0 {
			return nil, 0, fmt.Errorf("record %d: %w", i, &model.ValidationError{Fields: []string{"id"}})
		}
		seen[p.ID] = struct{}{}
		if Version(doc) == V1 {
			legacy++
		}
		ps = append(ps, p)
	}
	return ps, legacy, nil
}

// DecodeCombat decodes a combat body. Each snapshot is migrated like a
// catalogue record.
func DecodeCombat(doc map[string]any) (model.Combat, error) {
	var c model.Combat
	migrated := make(map[string]any, len(doc))
	for k, v := range doc {
		migrated[k] = v
	}
	for _, side := range []string{"first", "second"} {
		snap, ok := doc[side].(map[string]any)
		if !ok {
			continue
		}
		m, err := Migrate(snap)
		if err != nil {
			var verr *model.ValidationError
			if errors.As(err, &verr) {
				for i, f := range verr.Fields {
					verr.Fields[i] = side + "." + f
				}
			}
			return c, err
		}
		migrated[side] = m
	}
	err := remarshal(migrated, &c)
	return c, err
}

// Int converts a decoded JSON value to an int. Numeric strings are accepted,
// fractional numbers are not.
func Int(v any) (int, error) {
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("not an integer: %v", n)
		}
		return int(n), nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		return int(i), err
	case string:
		return strconv.Atoi(strings.TrimSpace(n))
	}
	return 0, fmt.Errorf("not a number: %v", v)
}
