package httpapi

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static
var kioskAssets embed.FS

// newStaticHandler serves the kiosk page. Kiosk browsers stay open for days,
// so every load revalidates.
func newStaticHandler() http.Handler {
	root, err := fs.Sub(kioskAssets, "static")
	if err != nil {
		return http.NotFoundHandler()
	}
	files := http.FileServerFS(root)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		// The page needs the microphone for push-to-talk and nothing else.
		w.Header().Set("Permissions-Policy", "microphone=(self), camera=()")
		files.ServeHTTP(w, r)
	})
}
