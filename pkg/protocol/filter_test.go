package protocol

import (
	"encoding/json"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringFilter(t *testing.T) {
	f := StringFilter{}
	assert.NoError(t, f.Check(json.RawMessage(`"hello"`)))
	assert.Error(t, f.Check(json.RawMessage(`42`)))
	assert.Error(t, f.Check(json.RawMessage(`null`)))
}

func TestRegexpFilter(t *testing.T) {
	f := RegexpFilter{Pattern: regexp.MustCompile(`^[a-z]{3,8}$`)}
	assert.NoError(t, f.Check(json.RawMessage(`"alice"`)))
	assert.Error(t, f.Check(json.RawMessage(`"A"`)))
	assert.Error(t, f.Check(json.RawMessage(`7`)))
}

func TestNumberFilter(t *testing.T) {
	f := NumberFilter{Min: 1, Max: 100}
	assert.NoError(t, f.Check(json.RawMessage(`50`)))
	assert.Error(t, f.Check(json.RawMessage(`0`)))
	assert.Error(t, f.Check(json.RawMessage(`101`)))
	assert.Error(t, f.Check(json.RawMessage(`"50"`)))
}

func TestObjectFilter(t *testing.T) {
	f := ObjectFilter{
		"username": RegexpFilter{Pattern: regexp.MustCompile(`^[a-zA-Z0-9]{3,16}$`)},
		"password": StringFilter{},
	}
	assert.NoError(t, f.Check(json.RawMessage(`{"username":"alice","password":"hunter2"}`)))
	assert.NoError(t, f.Check(json.RawMessage(`{"username":"alice","password":"hunter2","extra":1}`)))
	assert.Error(t, f.Check(json.RawMessage(`{"username":"alice"}`)))
	assert.Error(t, f.Check(json.RawMessage(`{"username":"!!","password":"hunter2"}`)))
	assert.Error(t, f.Check(json.RawMessage(`"not an object"`)))
}
