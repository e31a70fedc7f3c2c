package masking

import "strings"

const maskToken = "****"

// MaskSecret redacts a value while keeping its last four characters.
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) <= 4 {
		return maskToken
	}
	return maskToken + trimmed[len(trimmed)-4:]
}

// MaskFields returns a copy of input with the string values under keys masked.
// Nested maps are walked with the same key set.
func MaskFields(input map[string]any, keys ...string) map[string]any {
	if len(input) == 0 {
		return nil
	}

	sensitive := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		sensitive[strings.ToLower(strings.TrimSpace(key))] = struct{}{}
	}

	return maskMap(input, sensitive)
}

func maskMap(input map[string]any, sensitive map[string]struct{}) map[string]any {
	masked := make(map[string]any, len(input))
	for key, value := range input {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		_, secret := sensitive[strings.ToLower(trimmedKey)]
		masked[trimmedKey] = maskValue(value, secret, sensitive)
	}
	return masked
}

func maskValue(value any, secret bool, sensitive map[string]struct{}) any {
	switch cast := value.(type) {
	case string:
		if secret {
			return MaskSecret(cast)
		}
		return cast
	case map[string]any:
		return maskMap(cast, sensitive)
	default:
		return value
	}
}
