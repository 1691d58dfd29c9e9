package graph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePropertyName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "simple", input: "owner", wantErr: false},
		{name: "camel case", input: "contractNumber", wantErr: false},
		{name: "digits", input: "line2Total", wantErr: false},
		{name: "leading upper", input: "Owner", wantErr: true},
		{name: "snake case", input: "contract_number", wantErr: true},
		{name: "leading digit", input: "2nd", wantErr: true},
		{name: "empty", input: "", wantErr: true},
		{name: "spaces", input: "my field", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePropertyName(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidProperty)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPropertyKind_DefaultValue(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

	assert.Equal(t, "", KindString.DefaultValue(now))
	assert.Equal(t, float64(0), KindNumber.DefaultValue(now))
	assert.Equal(t, "2025-03-14", KindDate.DefaultValue(now))
	assert.Equal(t, "", KindVariable.DefaultValue(now))
}

func TestProperty_Validate(t *testing.T) {
	assert.NoError(t, Property{Name: "amount", Kind: KindNumber, Value: 12.5}.Validate())
	assert.Error(t, Property{Name: "amount", Kind: KindNumber, Value: "12"}.Validate())
	assert.NoError(t, Property{Name: "due", Kind: KindDate, Value: "2025-01-31"}.Validate())
	assert.Error(t, Property{Name: "due", Kind: KindDate, Value: "31/01/2025"}.Validate())
	assert.Error(t, Property{Name: "x", Kind: "blob", Value: ""}.Validate())
}

func TestStore_SetProperty(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.AddNode(*NewNode("n1", "decision")))

	require.NoError(t, s.SetProperty("n1", NewProperty("budgetCode", KindString)))
	n, _ := s.Node("n1")
	assert.Contains(t, n.Data.Properties, "budgetCode")

	err := s.SetProperty("n1", Property{Name: "Budget", Kind: KindString, Value: ""})
	assert.ErrorIs(t, err, ErrInvalidProperty)
}
