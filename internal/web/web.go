// Package web embeds the single-page front end served at / and /static.
package web

import (
	"embed"
	"io/fs"
)

//go:embed index.html static
var files embed.FS

// Index returns the landing page.
func Index() []byte {
	b, _ := files.ReadFile("index.html")
	return b
}

// Static returns the asset tree rooted at static/.
func Static() fs.FS {
	sub, _ := fs.Sub(files, "static")
	return sub
}
