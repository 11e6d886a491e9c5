package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemapipe/pkg/contracts/domain"
)

func TestDefaultContract(t *testing.T) {
	contract := DefaultContract()

	require.NoError(t, contract.Validate())
	assert.Len(t, contract.Fields, 8)
	assert.Equal(t,
		[]string{"provider_id", "article_sku", "report_date", "sales_amount"},
		contract.RequiredFields())

	field, ok := contract.Field("report_date")
	require.True(t, ok)
	assert.Equal(t, domain.FieldTypeDate, field.Type)
	assert.Contains(t, field.Synonyms, "period")
}

func TestLoadContract(t *testing.T) {
	t.Run("missing file falls back to default", func(t *testing.T) {
		contract, err := LoadContract(filepath.Join(t.TempDir(), "contract.yaml"))
		require.NoError(t, err)
		assert.Equal(t, DefaultContract(), contract)
	})

	t.Run("valid file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "contract.yaml")
		content := `fields:
  - name: order_id
    type: string
    required: true
    synonyms: ["order #", " order no ", ""]
  - name: quantity
    type: number
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		contract, err := LoadContract(path)
		require.NoError(t, err)
		require.Len(t, contract.Fields, 2)

		assert.Equal(t, "order_id", contract.Fields[0].Name)
		assert.True(t, contract.Fields[0].Required)
		// Synonyms come back trimmed with empties dropped.
		assert.Equal(t, []string{"order #", "order no"}, contract.Fields[0].Synonyms)

		assert.Equal(t, domain.FieldTypeNumber, contract.Fields[1].Type)
		assert.False(t, contract.Fields[1].Required)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "contract.yaml")
		require.NoError(t, os.WriteFile(path, []byte("fields: [unclosed"), 0o644))

		_, err := LoadContract(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse contract")
	})

	t.Run("duplicate field names", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "contract.yaml")
		content := `fields:
  - name: order_id
    type: string
  - name: order_id
    type: number
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		_, err := LoadContract(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate contract field")
	})

	t.Run("unknown type", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "contract.yaml")
		content := `fields:
  - name: order_id
    type: decimal
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		_, err := LoadContract(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown type")
	})
}
