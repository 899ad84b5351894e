package router

import (
	"net/http"
	"os"
	"path"
	"path/filepath"

	log "PGWDash/internal/log"

	"github.com/gorilla/mux"
)

// NewRootHandler 顶层路由：/api/ 交给 gin，其余为前端静态资源。
// 找不到的路径返回 index.html 以支持前端路由（例如 /login）。
func NewRootHandler(apiHandler http.Handler, distDir string) http.Handler {
	root := mux.NewRouter()
	root.StrictSlash(true)

	root.PathPrefix("/api/").Handler(apiHandler)

	if _, err := os.Stat(distDir); err != nil {
		log.Warnf("[HTTP] 前端目录 %s 不存在，仅提供 API", distDir)
		root.PathPrefix("/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "frontend not installed", http.StatusNotFound)
		})
		return root
	}

	dir := http.Dir(distDir)
	fs := http.FileServer(dir)
	index := filepath.Join(distDir, "index.html")
	root.PathPrefix("/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, err := dir.Open(path.Clean("/" + r.URL.Path))
		if err != nil {
			http.ServeFile(w, r, index)
			return
		}
		f.Close()
		fs.ServeHTTP(w, r)
	})
	return root
}
