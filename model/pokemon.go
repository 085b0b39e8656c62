// Package model defines the catalogue records shared by every store backend.
package model

import (
	"strconv"
	"strings"
)

// Locales every Name is expected to carry.
var Locales = []string{"english", "japanese", "chinese", "french"}

// Name maps a locale tag to a display string.
type Name map[string]string

// Base holds the six battle stats. JSON and BSON keys follow the public
// pokemon.json dataset.
type Base struct {
	HP        int `json:"HP" bson:"HP" validate:"required"`
	Attack    int `json:"Attack" bson:"Attack" validate:"required"`
	Defense   int `json:"Defense" bson:"Defense" validate:"required"`
	SpAttack  int `json:"Sp. Attack" bson:"Sp. Attack" validate:"required"`
	SpDefense int `json:"Sp. Defense" bson:"Sp. Defense" validate:"required"`
	Speed     int `json:"Speed" bson:"Speed" validate:"required"`
}

// Pokemon is one catalogue entry.
type Pokemon struct {
	ID    int      `json:"id" bson:"id"`
	Name  Name     `json:"name" bson:"name" validate:"required,min=1"`
	Type  []string `json:"type" bson:"type" validate:"required,min=1,dive,required"`
	Base  *Base    `json:"base" bson:"base" validate:"required"`
	Image string   `json:"image" bson:"image"`
}

// BasePatch carries the stats of a partial update. Nil stats are left
// untouched; a present stat must be positive.
type BasePatch struct {
	HP        *int `json:"HP,omitempty" bson:"HP,omitempty" validate:"omitempty,gt=0"`
	Attack    *int `json:"Attack,omitempty" bson:"Attack,omitempty" validate:"omitempty,gt=0"`
	Defense   *int `json:"Defense,omitempty" bson:"Defense,omitempty" validate:"omitempty,gt=0"`
	SpAttack  *int `json:"Sp. Attack,omitempty" bson:"Sp. Attack,omitempty" validate:"omitempty,gt=0"`
	SpDefense *int `json:"Sp. Defense,omitempty" bson:"Sp. Defense,omitempty" validate:"omitempty,gt=0"`
	Speed     *int `json:"Speed,omitempty" bson:"Speed,omitempty" validate:"omitempty,gt=0"`
}

// Patch returns a BasePatch setting every stat of b.
func (b Base) Patch() *BasePatch {
	return &BasePatch{
		HP: &b.HP, Attack: &b.Attack, Defense: &b.Defense,
		SpAttack: &b.SpAttack, SpDefense: &b.SpDefense, Speed: &b.Speed,
	}
}

// Empty reports whether no stat is set.
func (b *BasePatch) Empty() bool {
	return b.HP == nil && b.Attack == nil && b.Defense == nil &&
		b.SpAttack == nil && b.SpDefense == nil && b.Speed == nil
}

func (b *BasePatch) applyTo(base *Base) {
	for _, f := range []struct {
		v   *int
		dst *int
	}{
		{b.HP, &base.HP}, {b.Attack, &base.Attack}, {b.Defense, &base.Defense},
		{b.SpAttack, &base.SpAttack}, {b.SpDefense, &base.SpDefense}, {b.Speed, &base.Speed},
	} {
		if f.v != nil {
			*f.dst = *f.v
		}
	}
}

// PokemonPatch carries the fields of a partial update. Nil or empty fields are
// left untouched on the target record.
type PokemonPatch struct {
	Name  Name       `json:"name,omitempty"`
	Type  []string   `json:"type,omitempty" validate:"omitempty,dive,required"`
	Base  *BasePatch `json:"base,omitempty"`
	Image *string    `json:"image,omitempty"`
}

// Empty reports whether the patch would change nothing.
func (p PokemonPatch) Empty() bool {
	return len(p.Name) == 0 && len(p.Type) == 0 && (p.Base == nil || p.Base.Empty()) && p.Image == nil
}

// Apply merges patch into p. Name is merged per locale and base per stat;
// type and image replace the current value.
func (p *Pokemon) Apply(patch PokemonPatch) {
	if len(patch.Name) > 0 {
		if p.Name == nil {
			p.Name = Name{}
		}
		for locale, v := range patch.Name {
			p.Name[locale] = v
		}
	}
	if len(patch.Type) > 0 {
		p.Type = append([]string(nil), patch.Type...)
	}
	if patch.Base != nil {
		b := Base{}
		if p.Base != nil {
			b = *p.Base
		}
		patch.Base.applyTo(&b)
		p.Base = &b
	}
	if patch.Image != nil {
		p.Image = *patch.Image
	}
}

// Clone returns a deep copy of p.
func (p Pokemon) Clone() Pokemon {
	out := p
	if p.Name != nil {
		out.Name = make(Name, len(p.Name))
		for k, v := range p.Name {
			out.Name[k] = v
		}
	}
	if p.Type != nil {
		out.Type = append([]string(nil), p.Type...)
	}
	if p.Base != nil {
		b := *p.Base
		out.Base = &b
	}
	return out
}

// ImageURL returns the artwork location served by the asset server for id.
func ImageURL(assetBase string, id int) string {
	return strings.TrimRight(assetBase, "/") + "/pokemons/" + strconv.Itoa(id) + ".png"
}

// NextID returns one past the highest id in ids, or 1 when there are none.
func NextID(ids ...int) int {
	max := 0
	for _, id := range ids {
		if id > max {
			max = id
		}
	}
	return max + 1
}
