package persona_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"personigo/persona"
)

func TestNormalizeKey(t *testing.T) {
	cases := map[string]string{
		"Favorite Color ":    "favorite_color",
		"favorite_color":     "favorite_color",
		"  FAVORITE   color": "favorite_color",
		"favorite-color!":    "favorite_color",
		"job.title":          "job_title",
		"hobby":              "hobby",
		"":                   "",
		"  ?!  ":             "",
		"project 2":          "project_2",
	}
	for raw, want := range cases {
		assert.Equal(t, want, persona.NormalizeKey(raw), "raw=%q", raw)
	}
}

func TestNormalizeKey_Idempotent(t *testing.T) {
	for _, raw := range []string{"Favorite Color ", "a  b\tc", "x__y", "Job-Title."} {
		once := persona.NormalizeKey(raw)
		assert.Equal(t, once, persona.NormalizeKey(once), "raw=%q", raw)
	}
}

func TestDisambiguateKey(t *testing.T) {
	assert.Equal(t, "project", persona.DisambiguateKey("project", nil))
	assert.Equal(t, "project_2", persona.DisambiguateKey("project", []string{"project"}))
	assert.Equal(t, "project_3", persona.DisambiguateKey("project", []string{"project", "project_2"}))
}
