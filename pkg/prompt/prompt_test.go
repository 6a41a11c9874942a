package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVariables(t *testing.T) {
	assert.Equal(t, []string{"name", "topic"}, Variables("Hi {{name}}, talk about {{topic}} with {{name}}"))
	assert.Empty(t, Variables("no placeholders"))
	assert.Empty(t, Variables("{{}} is not a variable"))
}

func TestRender(t *testing.T) {
	vars := map[string]string{"name": "Ada", "empty": ""}

	assert.Equal(t, "Hi Ada", Render("Hi {{name}}", vars))
	assert.Equal(t, "Hi Ada and Ada", Render("Hi {{name}} and {{name}}", vars))
	assert.Equal(t, "Hi {{other}}", Render("Hi {{other}}", vars))
	assert.Equal(t, "Hi {{empty}}", Render("Hi {{empty}}", vars))
	assert.Equal(t, "Say hi", Render("Say hi", nil))
	assert.Equal(t, "{{name}}", Render("{{name}}", nil))
}

func TestMissing(t *testing.T) {
	assert.Equal(t, []string{"topic"}, Missing("{{name}} on {{topic}}", map[string]string{"name": "Ada"}))
	assert.Empty(t, Missing("plain", nil))
}
