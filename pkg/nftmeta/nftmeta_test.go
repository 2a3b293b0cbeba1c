package nftmeta

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cid = "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"

func TestNormalizeIPFS(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"  ", ""},
		{"ipfs://" + cid, IPFSGateway + cid},
		{cid, IPFSGateway + cid},
		{" https://example.com/a.png ", "https://example.com/a.png"},
		{"shortcid", "shortcid"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeIPFS(tt.in), "input %q", tt.in)
	}
}

func TestBuildTokenURI_RoundTrip(t *testing.T) {
	uri, err := BuildTokenURI("Genesis", "first drop — ünïcode", "ipfs://"+cid)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "data:application/json;base64,"))

	meta, ok := Decode(uri)
	require.True(t, ok)
	assert.Equal(t, "Genesis", meta.Name)
	assert.Equal(t, "first drop — ünïcode", meta.Description)
	assert.Equal(t, IPFSGateway+cid, meta.Image)
}

func TestBuildTokenURI_RequiresAllFields(t *testing.T) {
	_, err := BuildTokenURI("name", "", "https://x/y.png")
	assert.Error(t, err)
	_, err = BuildTokenURI("", "d", "https://x/y.png")
	assert.Error(t, err)
	_, err = BuildTokenURI("n", "d", "  ")
	assert.Error(t, err)
}

func TestDecode_Rejects(t *testing.T) {
	_, ok := Decode("https://example.com/1.json")
	assert.False(t, ok)
	_, ok = Decode("data:application/json;base64,!!!")
	assert.False(t, ok)
	_, ok = Decode("data:application/json;base64," + base64.StdEncoding.EncodeToString([]byte("not json")))
	assert.False(t, ok)
}

func TestResolve(t *testing.T) {
	t.Run("metadata image wins", func(t *testing.T) {
		uri, err := BuildTokenURI("Cat", "a cat", cid)
		require.NoError(t, err)
		m := Resolve(uri)
		assert.Equal(t, "Cat", m.Name)
		assert.Equal(t, IPFSGateway+cid, m.Image)
	})

	t.Run("untitled when no metadata", func(t *testing.T) {
		m := Resolve("https://example.com/direct.png")
		assert.Equal(t, "Untitled", m.Name)
		assert.Equal(t, "https://example.com/direct.png", m.Image)
	})

	t.Run("blank name falls back", func(t *testing.T) {
		raw := `{"name":"  ","description":"d","image":"ftp://nope"}`
		m := Resolve("data:application/json;base64," + base64.StdEncoding.EncodeToString([]byte(raw)))
		assert.Equal(t, "Untitled", m.Name)
		assert.Empty(t, m.Image)
	})

	t.Run("inline image", func(t *testing.T) {
		raw := `{"name":"Dot","image":"data:image/png;base64,AAAA"}`
		m := Resolve("data:application/json;base64," + base64.StdEncoding.EncodeToString([]byte(raw)))
		assert.Equal(t, "data:image/png;base64,AAAA", m.Image)
	})
}
