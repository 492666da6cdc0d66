package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admsserver/models"
)

func TestEmbeddedCatalog(t *testing.T) {
	c, err := LoadCatalog("")
	require.NoError(t, err)

	assert.Contains(t, c.Names(), "reboot")
	assert.Contains(t, c.Names(), "add_user")

	spec, err := c.Lookup("reboot")
	require.NoError(t, err)
	assert.Equal(t, "CONTROL DEVICE 03000000", spec.Command)
}

func TestCatalogValidate(t *testing.T) {
	c, err := LoadCatalog("")
	require.NoError(t, err)

	spec, err := c.Validate("add_user", models.NewParams("PIN", "7", "Pri", "0", "Card", ""))
	require.NoError(t, err)
	assert.Equal(t, "DATA UPDATE USERINFO", spec.Command)

	_, err = c.Validate("format_disk", models.CommandParams{})
	assert.ErrorIs(t, err, ErrInvalidCommand)

	_, err = c.Validate("add_user", models.NewParams("PIN", "7", "Shell", "rm"))
	assert.ErrorIs(t, err, ErrInvalidCommand)

	_, err = c.Validate("add_user", models.NewParams("Name", "Kim"))
	assert.ErrorIs(t, err, ErrInvalidCommand)

	_, err = c.Validate("add_user", models.NewListParams("PIN=7"))
	assert.ErrorIs(t, err, ErrInvalidCommand)

	_, err = c.Validate("reboot", models.CommandParams{})
	assert.NoError(t, err)
	_, err = c.Validate("reboot", models.NewParams("Force", "1"))
	assert.ErrorIs(t, err, ErrInvalidCommand)
}

func TestCatalogListParams(t *testing.T) {
	c, err := LoadCatalog("")
	require.NoError(t, err)

	_, err = c.Validate("set_option", models.NewListParams("Delay=10"))
	assert.NoError(t, err)

	_, err = c.Validate("set_option", models.NewListParams())
	assert.ErrorIs(t, err, ErrInvalidCommand)

	_, err = c.Validate("set_option", models.NewParams("Delay", "10"))
	assert.ErrorIs(t, err, ErrInvalidCommand)
}

func TestCatalogRejectsControlCharacters(t *testing.T) {
	c, err := LoadCatalog("")
	require.NoError(t, err)

	for _, params := range []models.CommandParams{
		models.NewParams("PIN", "7", "Name", "x\r\nC:1:CLEAR DATA"),
		models.NewParams("PIN", "7", "Name", "a\tPri=14"),
		models.NewParams("PIN", "7\n"),
	} {
		_, err := c.Validate("add_user", params)
		assert.ErrorIs(t, err, ErrInvalidCommand)
	}

	_, err = c.Validate("set_option", models.NewListParams("Delay=10\r\nC:2:CLEAR LOG"))
	assert.ErrorIs(t, err, ErrInvalidCommand)

	_, err = c.Validate("add_user", models.NewParams("PIN", "7", "Name", "Kim Minji"))
	assert.NoError(t, err)
}

func TestParseCatalogRejectsBadEntries(t *testing.T) {
	_, err := ParseCatalog([]byte("commands:\n  - name: a\n"))
	assert.Error(t, err)

	_, err = ParseCatalog([]byte("commands:\n  - name: a\n    command: A\n  - name: a\n    command: B\n"))
	assert.Error(t, err)

	_, err = ParseCatalog([]byte("commands: [\n"))
	assert.Error(t, err)
}
