package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret("  "))
	assert.Equal(t, "****", MaskSecret("1234"))
	assert.Equal(t, "****6789", MaskSecret("123456789"))
}

func TestMaskFields(t *testing.T) {
	out := MaskFields(map[string]any{
		"mode": "cheque",
		"details": map[string]any{
			"bank":          "HDFC",
			"cheque_number": "000123456",
		},
		"utr": "UTR99887766",
	}, "cheque_number", "utr")

	assert.Equal(t, "cheque", out["mode"])
	assert.Equal(t, "****7766", out["utr"])
	details := out["details"].(map[string]any)
	assert.Equal(t, "HDFC", details["bank"])
	assert.Equal(t, "****3456", details["cheque_number"])

	assert.Nil(t, MaskFields(nil, "utr"))
}
