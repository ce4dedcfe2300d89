package tooling

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSchemaPresent(t *testing.T) {
	raw := []byte(`{
		"type": "object",
		"properties": {
			"employee_id": {"type": "string", "description": "Employee unique ID"},
			"start": {"type": "string", "format": "date"},
			"leave_type": {"type": "string", "enum": ["annual", "sick"]},
			"reason": {"anyOf": [{"type": "string"}, {"type": "null"}]}
		},
		"required": ["employee_id", "start", "start", "end"]
	}`)

	schema := ParseSchema(raw)
	assert.True(t, schema.Available())
	assert.Equal(t, []string{"employee_id", "start", "end"}, schema.RequiredFields())
	assert.Equal(t, "date", schema.Properties["start"].Format)
	assert.Equal(t, []string{"annual", "sick"}, schema.Properties["leave_type"].Enum)
	assert.Equal(t, "string", schema.Properties["reason"].Type)
}

func TestParseSchemaFailOpen(t *testing.T) {
	cases := map[string][]byte{
		"empty":          nil,
		"invalid json":   []byte(`{"required": [`),
		"not an object":  []byte(`["employee_id"]`),
		"required shape": []byte(`{"required": "employee_id"}`),
		"non-string":     []byte(`{"required": ["employee_id", 3]}`),
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			schema := ParseSchema(raw)
			assert.False(t, schema.Available())
			assert.Empty(t, schema.RequiredFields())
			assert.NotEmpty(t, schema.Reason)
		})
	}
}

func TestParseSchemaWithoutRequired(t *testing.T) {
	schema := ParseSchema([]byte(`{"type":"object","properties":{}}`))
	assert.True(t, schema.Available())
	assert.Empty(t, schema.RequiredFields())
}

func TestDescribeListsRequiredAndOptional(t *testing.T) {
	tool := NewTool("payroll_lookup", "Payroll lookup tool", []byte(`{"properties":{"employee_id":{},"period":{}},"required":["employee_id"]}`))
	text := Describe([]Tool{tool})
	assert.Equal(t, "- payroll_lookup: Payroll lookup tool (required: employee_id) (optional: period)\n", text)
}
