package main

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/useradminops/useradmin/useradmin/accountclient"
	"github.com/useradminops/useradmin/useradmin/accountmodel"
)

func TestReadDefaultsFromFile(t *testing.T) {
	content := `[bus]
timeout = 10s

[passwd]
hint = ask the helpdesk
`
	tmpfile, err := os.CreateTemp("", "defaults*.ini")
	assert.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	_, err = tmpfile.WriteString(content)
	assert.NoError(t, err)
	assert.NoError(t, tmpfile.Close())

	d, err := readDefaultsFromFile(tmpfile.Name())
	assert.NoError(t, err)
	assert.Equal(t, 10*time.Second, d.Timeout)
	assert.Equal(t, "ask the helpdesk", d.PasswordHint)
}

func TestReadDefaultsFromFileMissingKeys(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "defaults*.ini")
	assert.NoError(t, err)
	defer os.Remove(tmpfile.Name())
	assert.NoError(t, tmpfile.Close())

	d, err := readDefaultsFromFile(tmpfile.Name())
	assert.NoError(t, err)
	assert.Equal(t, accountclient.DefaultCallTimeout, d.Timeout)
	assert.Empty(t, d.PasswordHint)
}

func TestReadDefaultsFromFileMissingFile(t *testing.T) {
	_, err := readDefaultsFromFile("no-such-file.ini")
	assert.Error(t, err)
}

func TestParseFieldAssignment(t *testing.T) {
	tests := []struct {
		assignment string
		field      accountmodel.Field
		value      interface{}
		wantErr    bool
	}{
		{"username=jdoe", accountmodel.FieldUsername, "jdoe", false},
		{"realname=Jane Doe", accountmodel.FieldRealName, "Jane Doe", false},
		{"email=jdoe@example.com", accountmodel.FieldEmail, "jdoe@example.com", false},
		{"face=/tmp/face.png", accountmodel.FieldFace, "/tmp/face.png", false},
		{"administrator=true", accountmodel.FieldAdministrator, true, false},
		{"autologin=false", accountmodel.FieldAutomaticLogin, false, false},
		{"administrator=maybe", 0, nil, true},
		{"username", 0, nil, true},
		{"shoe-size=44", 0, nil, true},
	}

	for _, tt := range tests {
		field, value, err := parseFieldAssignment(tt.assignment)
		if tt.wantErr {
			assert.Error(t, err, tt.assignment)
			continue
		}
		assert.NoError(t, err, tt.assignment)
		assert.Equal(t, tt.field, field, tt.assignment)
		assert.Equal(t, tt.value, value, tt.assignment)
	}
}
