package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeStripsDiacritics(t *testing.T) {
	assert.Equal(t, "nicolas maduro", Normalize("Nicolás Maduro"))
	assert.Equal(t, "nicolas maduro", Normalize("Nicolas Maduro"))
	assert.Equal(t, "jose gregorio hernandez", Normalize("José Gregorio Hernández"))
}

func TestNormalizeEquivalenceClasses(t *testing.T) {
	variants := []string{
		"Nicolás Maduro",
		"nicolas maduro",
		"  Nicolas   MADURO  ",
		"Sr. Nicolás Maduro",
	}
	want := Normalize(variants[0])
	for _, v := range variants {
		assert.Equal(t, want, Normalize(v), "variant %q", v)
	}
}

func TestNormalizeCollapsesWhitespace(t *testing.T) {
	assert.Equal(t, "banco central", Normalize("  Banco \t Central \n"))
}

func TestNormalizeTrimsHonorifics(t *testing.T) {
	assert.Equal(t, "maria corina machado", Normalize("Sra. María Corina Machado"))
	assert.Equal(t, "pedro perez", Normalize("Dr. Pedro Pérez Jr."))
}

func TestNormalizeKeepsSingleToken(t *testing.T) {
	// A name consisting only of an honorific-looking token must not
	// normalize to empty.
	assert.Equal(t, "don", Normalize("Don"))
	assert.NotEmpty(t, Normalize("Jr."))
}

func TestNormalizeEmptyInput(t *testing.T) {
	assert.Equal(t, "", Normalize(""))
	assert.Equal(t, "", Normalize("   "))
}

func TestNormalizeIdempotent(t *testing.T) {
	once := Normalize("Gral. Vladimir Padrino López")
	assert.Equal(t, once, Normalize(once))
}
