package domain

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// DecodeOrderInput converts a loosely keyed payload into an OrderInput. Keys are matched
// ignoring case, underscores, hyphens and spaces so order_id, orderId and OrderID resolve to the
// same field. Scalar values are weakly typed, e.g. "10.50" decodes into an amount.
func DecodeOrderInput(raw map[string]any) (OrderInput, error) {
	var order OrderInput
	if len(raw) == 0 {
		return order, &ValidationError{Field: "order", Reason: "is required"}
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		DecodeHook:       blankStringToNil,
		MatchName:        matchFieldName,
		Result:           &order,
	})
	if err != nil {
		return OrderInput{}, fmt.Errorf("order decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return OrderInput{}, &ValidationError{Field: "order", Reason: "is malformed: " + err.Error()}
	}
	return order, nil
}

// DecodeEvaluateOptions converts loosely keyed evaluation options.
func DecodeEvaluateOptions(raw map[string]any) (EvaluateOptions, error) {
	var opts EvaluateOptions
	if len(raw) == 0 {
		return opts, nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		DecodeHook:       blankStringToNil,
		MatchName:        matchFieldName,
		Result:           &opts,
	})
	if err != nil {
		return EvaluateOptions{}, fmt.Errorf("options decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return EvaluateOptions{}, &ValidationError{Field: "options", Reason: "is malformed: " + err.Error()}
	}
	return opts, nil
}

// blankStringToNil leaves optional fields unset for "" so weak typing cannot turn a blank
// amount into zero.
func blankStringToNil(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to.Kind() != reflect.Ptr {
		return data, nil
	}
	if s, ok := data.(string); ok && strings.TrimSpace(s) == "" {
		return nil, nil
	}
	return data, nil
}

func matchFieldName(mapKey, fieldName string) bool {
	return canonicalKey(mapKey) == canonicalKey(fieldName)
}

func canonicalKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range strings.ToLower(key) {
		switch r {
		case '_', '-', ' ':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
