package htmlcleaner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanForStorageStripsScripts(t *testing.T) {
	cleaner := New("example.com")

	cleaned := cleaner.CleanForStorage(`<p onclick="alert(1)">hello<script>alert(2)</script></p>`)

	assert.Equal(t, "<p>hello</p>", cleaned)
}

func TestCleanForStorageRewritesMainDomain(t *testing.T) {
	cleaner := New("example.com")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "absolute link on main domain",
			input: `<a href="https://example.com/producten/fiets">fiets</a>`,
			want:  `<a href="/producten/fiets" rel="nofollow">fiets</a>`,
		},
		{
			name:  "www prefix treated as main domain",
			input: `<a href="http://www.example.com/over-ons">over ons</a>`,
			want:  `<a href="/over-ons" rel="nofollow">over ons</a>`,
		},
		{
			name:  "foreign domain untouched",
			input: `<a href="https://other.org/page">elders</a>`,
			want:  `<a href="https://other.org/page" rel="nofollow">elders</a>`,
		},
		{
			name:  "image source rewritten",
			input: `<img src="https://example.com/images/logo.png"/>`,
			want:  `<img src="/images/logo.png"/>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleaner.CleanForStorage(tt.input))
		})
	}
}

func TestCleanForStorageWithoutDomain(t *testing.T) {
	cleaner := New("")

	cleaned := cleaner.CleanForStorage(`<img src="https://example.com/images/logo.png"/>`)

	assert.Equal(t, `<img src="https://example.com/images/logo.png"/>`, cleaned)
}

func TestCleanForStorageEmpty(t *testing.T) {
	cleaner := New("example.com")
	assert.Equal(t, "", cleaner.CleanForStorage(""))
}
