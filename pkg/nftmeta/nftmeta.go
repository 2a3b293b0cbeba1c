// Package nftmeta builds and resolves on-chain NFT metadata carried as
// base64 JSON data URIs.
package nftmeta

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

const (
	// IPFSGateway is prepended to CIDs and ipfs:// references.
	IPFSGateway = "https://ipfs.io/ipfs/"

	jsonDataURIPrefix = "data:application/json;base64,"
	defaultName       = "Untitled"
)

var cidRe = regexp.MustCompile(`^[a-zA-Z0-9]{46,}$`)

// Metadata is the ERC-721 metadata document stored in a token URI.
type Metadata struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

// NormalizeIPFS rewrites a raw CID or ipfs:// reference to a gateway URL.
// Anything else is returned trimmed and unchanged.
func NormalizeIPFS(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if rest, ok := strings.CutPrefix(s, "ipfs://"); ok {
		return IPFSGateway + rest
	}
	if cidRe.MatchString(s) {
		return IPFSGateway + s
	}
	return s
}

// BuildTokenURI encodes metadata as a data:application/json;base64 URI.
// All three fields are required.
func BuildTokenURI(name, description, image string) (string, error) {
	name = strings.TrimSpace(name)
	description = strings.TrimSpace(description)
	image = NormalizeIPFS(image)
	if name == "" || description == "" || image == "" {
		return "", fmt.Errorf("name, description and image are required")
	}

	raw, err := json.Marshal(Metadata{Name: name, Description: description, Image: image})
	if err != nil {
		return "", fmt.Errorf("encoding metadata: %w", err)
	}
	return jsonDataURIPrefix + base64.StdEncoding.EncodeToString(raw), nil
}

// Decode parses a base64 JSON data URI. ok is false for any other URI form
// or a payload that does not decode.
func Decode(tokenURI string) (Metadata, bool) {
	b64, found := strings.CutPrefix(tokenURI, jsonDataURIPrefix)
	if !found {
		return Metadata{}, false
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return Metadata{}, false
	}
	var m Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return Metadata{}, false
	}
	return m, true
}

// Resolve turns a token URI into displayable metadata. The name falls back to
// "Untitled"; the image is kept only when it is an http(s) URL or an inline
// data:image, preferring the metadata image over the URI itself.
func Resolve(tokenURI string) Metadata {
	meta, _ := Decode(tokenURI)

	out := Metadata{
		Name:        strings.TrimSpace(meta.Name),
		Description: strings.TrimSpace(meta.Description),
	}
	if out.Name == "" {
		out.Name = defaultName
	}

	if img := NormalizeIPFS(meta.Image); displayable(img) {
		out.Image = img
	} else if direct := NormalizeIPFS(tokenURI); displayable(direct) {
		out.Image = direct
	}
	return out
}

func displayable(u string) bool {
	return strings.HasPrefix(u, "http") || strings.HasPrefix(u, "data:image")
}
