package driver

import (
	"testing"

	"github.com/odit-bit/rcaccelerator/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func Test_genaiRequest(t *testing.T) {
	g := &GeminiAdapter{}

	contents, config, err := g.request(model.CCReq{
		Model:       "gemini-2.5-flash",
		MaxTokens:   256,
		Temperature: 0.2,
		Messages: []model.Message{
			model.NewTextMessage(model.RoleSystem, "you analyse CI failures"),
			model.NewTextMessage(model.RoleUser, "what broke"),
			model.NewTextMessage(model.RoleAssistant, "the network"),
		},
	})
	require.NoError(t, err)

	require.Len(t, contents, 2)
	assert.Equal(t, genai.RoleUser, contents[0].Role)
	assert.Equal(t, "what broke", contents[0].Parts[0].Text)
	assert.Equal(t, genai.RoleModel, contents[1].Role)

	assert.Equal(t, int32(256), config.MaxOutputTokens)
	assert.Equal(t, float32(0.2), *config.Temperature)
	require.NotNil(t, config.SystemInstruction)
	assert.Equal(t, "you analyse CI failures", config.SystemInstruction.Parts[0].Text)
}

func Test_genaiRequest_Empty(t *testing.T) {
	g := &GeminiAdapter{}
	_, _, err := g.request(model.CCReq{
		Messages: []model.Message{model.NewTextMessage(model.RoleSystem, "only system")},
	})
	require.Error(t, err)
}

func Test_genaiModels(t *testing.T) {
	_, err := NewGeminiAdapter(t.Context(), Config{Driver: GenAI})
	require.Error(t, err)

	g := &GeminiAdapter{models: []string{"gemini-2.5-flash"}}
	names, err := g.ListModels(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"gemini-2.5-flash"}, names)
}
