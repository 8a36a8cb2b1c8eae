// Package webui embeds the browser playground served at / by quill serve.
package webui

import _ "embed"

//go:embed static/index.html
var index []byte

// Index returns the playground page.
func Index() []byte { return index }
