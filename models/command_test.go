package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandParamsPreserveOrder(t *testing.T) {
	var p CommandParams
	require.NoError(t, json.Unmarshal([]byte(`{"Pri":"0","Card":"","PIN":12,"Enabled":true}`), &p))

	assert.False(t, p.IsList)
	assert.Equal(t, []string{"Pri", "Card", "PIN", "Enabled"}, p.Keys())
	assert.Equal(t, "Pri=0\tCard=\tPIN=12\tEnabled=true", p.Wire())

	out, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Equal(t, `{"Pri":"0","Card":"","PIN":"12","Enabled":"true"}`, string(out))
}

func TestCommandParamsList(t *testing.T) {
	var p CommandParams
	require.NoError(t, json.Unmarshal([]byte(`["Door1", 5]`), &p))

	assert.True(t, p.IsList)
	assert.Equal(t, 2, p.Len())
	assert.Equal(t, "Door1\t5", p.Wire())

	out, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Equal(t, `["Door1","5"]`, string(out))
}

func TestCommandParamsEmptyAndNull(t *testing.T) {
	var p CommandParams
	require.NoError(t, json.Unmarshal([]byte(`null`), &p))
	assert.Equal(t, 0, p.Len())
	assert.Equal(t, "", p.Wire())

	out, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(out))
}

func TestCommandParamsRejectsNested(t *testing.T) {
	var p CommandParams
	assert.Error(t, json.Unmarshal([]byte(`{"a":{"b":1}}`), &p))
	assert.Error(t, json.Unmarshal([]byte(`"str"`), &p))
}

func TestCommandRoundTripInsideStruct(t *testing.T) {
	cmd := Command{ID: "c1", Params: NewParams("PIN", "7", "Name", "Kim")}
	raw, err := json.Marshal(cmd)
	require.NoError(t, err)

	var back Command
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, "PIN=7\tName=Kim", back.Params.Wire())
}

func TestCommandStatusRank(t *testing.T) {
	assert.Less(t, CommandStatusRank(CommandStatusPending), CommandStatusRank(CommandStatusSent))
	assert.Less(t, CommandStatusRank(CommandStatusSent), CommandStatusRank(CommandStatusExecuted))
	assert.Equal(t, CommandStatusRank(CommandStatusExecuted), CommandStatusRank(CommandStatusFailed))
	assert.True(t, IsTerminalCommandStatus(CommandStatusFailed))
	assert.False(t, IsTerminalCommandStatus(CommandStatusSent))
}
