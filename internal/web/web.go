// Package web serves the embedded single-page client.
package web

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static
var staticFS embed.FS

// Handler serves the embedded client at /.
func Handler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		// The subtree is fixed at compile time.
		panic(err)
	}
	return http.FileServerFS(sub)
}
