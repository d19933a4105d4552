package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tetratelabs/wazero/api"
)

// encodeArgs parses comma-separated literals into wazero params for types.
func encodeArgs(raw string, types []api.ValueType) ([]uint64, error) {
	var fields []string
	if strings.TrimSpace(raw) != "" {
		fields = strings.Split(raw, ",")
	}
	if len(fields) != len(types) {
		return nil, fmt.Errorf("expected %d arguments, got %d", len(types), len(fields))
	}

	params := make([]uint64, len(types))
	for i, t := range types {
		field := strings.TrimSpace(fields[i])
		switch t {
		case api.ValueTypeI32:
			v, err := strconv.ParseInt(field, 0, 32)
			if err != nil {
				// Unsigned literals such as 0xffffffff wrap like pointers and masks.
				u, uerr := strconv.ParseUint(field, 0, 32)
				if uerr != nil {
					return nil, fmt.Errorf("argument %d: %w", i, err)
				}
				params[i] = api.EncodeU32(uint32(u))
				continue
			}
			params[i] = api.EncodeI32(int32(v))
		case api.ValueTypeI64:
			v, err := strconv.ParseInt(field, 0, 64)
			if err != nil {
				u, uerr := strconv.ParseUint(field, 0, 64)
				if uerr != nil {
					return nil, fmt.Errorf("argument %d: %w", i, err)
				}
				params[i] = u
				continue
			}
			params[i] = api.EncodeI64(v)
		case api.ValueTypeF32:
			v, err := strconv.ParseFloat(field, 32)
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i, err)
			}
			params[i] = api.EncodeF32(float32(v))
		case api.ValueTypeF64:
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i, err)
			}
			params[i] = api.EncodeF64(v)
		default:
			return nil, fmt.Errorf("argument %d: unsupported type %s", i, api.ValueTypeName(t))
		}
	}
	return params, nil
}

// formatResults renders results according to types.
func formatResults(results []uint64, types []api.ValueType) []string {
	out := make([]string, len(results))
	for i, r := range results {
		var t api.ValueType
		if i < len(types) {
			t = types[i]
		}
		switch t {
		case api.ValueTypeI32:
			out[i] = strconv.FormatInt(int64(api.DecodeI32(r)), 10)
		case api.ValueTypeI64:
			out[i] = strconv.FormatInt(int64(r), 10)
		case api.ValueTypeF32:
			out[i] = strconv.FormatFloat(float64(api.DecodeF32(r)), 'g', -1, 32)
		case api.ValueTypeF64:
			out[i] = strconv.FormatFloat(api.DecodeF64(r), 'g', -1, 64)
		default:
			out[i] = fmt.Sprintf("0x%x", r)
		}
	}
	return out
}
