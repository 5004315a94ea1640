// Package model defines the closed set of tagged-union types that stream events
// and ordinary responses are decoded into.
//
// Every union is backed by a Registry keyed on a discriminator field. Registries
// are built once at package initialization and never mutated, so they are safe
// for concurrent use without synchronization.
package model

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/tjfontaine/aiwire/internal/domain"
)

// VariantDecoder decodes a raw JSON object into one variant of a union.
type VariantDecoder[T any] func(raw []byte) (T, error)

// Registry maps discriminator values to variant decoders.
type Registry[T any] struct {
	field    string
	variants map[string]VariantDecoder[T]
}

// NewRegistry builds an immutable registry for the given discriminator field.
func NewRegistry[T any](field string, variants map[string]VariantDecoder[T]) *Registry[T] {
	table := make(map[string]VariantDecoder[T], len(variants))
	for k, v := range variants {
		table[k] = v
	}
	return &Registry[T]{field: field, variants: table}
}

// Field returns the discriminator field name.
func (r *Registry[T]) Field() string {
	return r.field
}

// Known reports whether value is a registered discriminator.
func (r *Registry[T]) Known(value string) bool {
	_, ok := r.variants[value]
	return ok
}

// Decode selects the variant named by the discriminator and decodes raw into it.
// Invalid JSON yields a malformed error; a missing or unregistered discriminator
// yields an unknown-variant error. No default variant is ever guessed.
func (r *Registry[T]) Decode(raw []byte) (T, error) {
	var zero T
	if !gjson.ValidBytes(raw) {
		return zero, domain.NewMalformedError(raw, nil)
	}

	disc := gjson.GetBytes(raw, r.field)
	if !gjson.ParseBytes(raw).IsObject() || disc.Type != gjson.String {
		return zero, domain.NewUnknownVariantError(r.field, "", raw)
	}

	decode, ok := r.variants[disc.String()]
	if !ok {
		return zero, domain.NewUnknownVariantError(r.field, disc.String(), raw)
	}
	return decode(raw)
}

// Unrecognized is a sequence element that failed to decode. The raw element is
// kept so no information is lost.
type Unrecognized struct {
	Index int
	Raw   json.RawMessage
	Err   error
}

// DecodeList decodes a JSON array element by element. A failing element is
// isolated into the unrecognized slice instead of failing the whole sequence.
func (r *Registry[T]) DecodeList(raw []byte) ([]T, []Unrecognized, error) {
	if !gjson.ValidBytes(raw) {
		return nil, nil, domain.NewMalformedError(raw, nil)
	}
	parsed := gjson.ParseBytes(raw)
	if parsed.Type == gjson.Null {
		return nil, nil, nil
	}
	if !parsed.IsArray() {
		return nil, nil, &domain.ClientError{
			Kind:    domain.KindUnknownVariant,
			Message: "expected a JSON array",
			Raw:     raw,
		}
	}

	var (
		values  []T
		skipped []Unrecognized
	)
	for i, elem := range parsed.Array() {
		elemRaw := []byte(elem.Raw)
		v, err := r.Decode(elemRaw)
		if err != nil {
			skipped = append(skipped, Unrecognized{Index: i, Raw: elemRaw, Err: err})
			continue
		}
		values = append(values, v)
	}
	return values, skipped, nil
}

// decodeInto unmarshals raw into v. Client errors raised by nested decoders pass
// through unchanged; any other decoding failure is reported as malformed.
func decodeInto(raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		var ce *domain.ClientError
		if errors.As(err, &ce) {
			return ce
		}
		malformed := domain.NewMalformedError(raw, err)
		malformed.Message = fmt.Sprintf("payload does not match %T", v)
		return malformed
	}
	return nil
}

// present returns the subset of fields that exist on the raw object.
func present(raw []byte, fields ...string) []string {
	var found []string
	for i, res := range gjson.GetManyBytes(raw, fields...) {
		if res.Exists() {
			found = append(found, fields[i])
		}
	}
	return found
}
