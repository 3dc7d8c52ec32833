package device

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cast"
)

// decodeParams extracts a codec's typed configuration from a loosely typed
// map. Numbers and strings convert into each other, so "7" and 7 both fill
// an int or a string field.
func decodeParams(tag Tag, in map[string]interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", tag, err)
	}
	if err := dec.Decode(in); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, tag, err)
	}
	return nil
}

// paramString reads a spec param that may be given as string or number.
// The second result is false when the key is absent or null.
func paramString(params map[string]interface{}, key string) (string, bool) {
	v, ok := params[key]
	if !ok || v == nil {
		return "", false
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return "", false
	}
	return s, true
}

// paramBool reads a loosely typed boolean: true, "true", "1" and 1 all count.
func paramBool(params map[string]interface{}, key string) bool {
	return cast.ToBool(params[key])
}
