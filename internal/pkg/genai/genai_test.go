package genai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalLooseJSON(t *testing.T) {
	type payload struct {
		Headline string `json:"headline"`
	}

	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", `{"headline":"Launch day"}`, "Launch day"},
		{"fenced", "```json\n{\"headline\":\"Launch day\"}\n```", "Launch day"},
		{"prose wrapped", "Here you go:\n{\"headline\":\"Launch day\"}\nEnjoy!", "Launch day"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var out payload
			require.NoError(t, UnmarshalLooseJSON(tc.raw, &out))
			assert.Equal(t, tc.want, out.Headline)
		})
	}

	var out payload
	assert.Error(t, UnmarshalLooseJSON("not json at all", &out))
}

func TestNormalizeOpenAIBaseURL(t *testing.T) {
	assert.Equal(t, "", normalizeOpenAIBaseURL(""))
	assert.Equal(t, "https://api.example.com/v1", normalizeOpenAIBaseURL("https://api.example.com"))
	assert.Equal(t, "https://api.example.com/v1", normalizeOpenAIBaseURL("https://api.example.com/v1/"))
}

func TestNormalizeOpenAICompatibleEndpoint(t *testing.T) {
	assert.Equal(t, "https://api.openai.com", normalizeOpenAICompatibleEndpoint(""))
	assert.Equal(t, "https://proxy.example.com", normalizeOpenAICompatibleEndpoint("https://proxy.example.com/v1"))
}

func TestGenerateWithoutProvider(t *testing.T) {
	_, err := Generate(t.Context(), nil, "", "write something")
	assert.ErrorIs(t, err, ErrNoProvider)
}
