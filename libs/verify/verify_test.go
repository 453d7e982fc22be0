package verify_test

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gogreen/libs/verify"
)

func TestIsSecureString(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"ana_p", true},
		{"Ana O'Neil", true},
		{"陳 小明", true},
		{"user@example.com", true},
		{"<script>", false},
		{"drop;table", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, verify.IsSecureString(tt.in), tt.in)
	}
}

func TestVerifyStringRequest(t *testing.T) {
	assert.False(t, verify.VerifyStringRequest("", 10))
	assert.True(t, verify.VerifyStringRequest("ana", 3))
	assert.False(t, verify.VerifyStringRequest("anna", 3))
}

func TestRegisterSafeText(t *testing.T) {
	v := validator.New()
	require.NoError(t, verify.RegisterSafeText(v))

	type profile struct {
		Name string `validate:"safe_text"`
	}
	assert.NoError(t, v.Struct(profile{Name: "ana"}))
	assert.Error(t, v.Struct(profile{Name: "a<b>"}))
}
