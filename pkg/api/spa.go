// Source: https://github.com/mandrigin/gin-spa
//
// MIT License
//
// Copyright (c) 2020 Igor Mandrigin
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package api

import (
	"net/http"
	"path"
	"strings"

	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
)

// cacheControlWriter sets Cache-Control from the path relative to the UI root
// right before the first write.
type cacheControlWriter struct {
	http.ResponseWriter
	path        string
	wroteHeader bool
}

func cacheControlFor(p string) string {
	switch {
	case strings.HasPrefix(p, "/assets/"):
		// vite emits content-hashed names below /assets
		return "public, max-age=31536000, immutable"
	case p == "/" || strings.HasSuffix(p, ".html"):
		return "no-cache, must-revalidate"
	default:
		return "public, max-age=3600, must-revalidate"
	}
}

func (w *cacheControlWriter) WriteHeader(statusCode int) {
	if !w.wroteHeader {
		w.wroteHeader = true
		if statusCode < http.StatusBadRequest {
			w.Header().Set("Cache-Control", cacheControlFor(w.path))
		}
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *cacheControlWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// ServeSPA serves the built admin UI from spaDirectory under urlPrefix.
// Unknown paths fall back to index.html so client-side routes survive reloads.
func ServeSPA(urlPrefix, spaDirectory string) gin.HandlerFunc {
	urlPrefix = strings.TrimRight(urlPrefix, "/")
	directory := static.LocalFile(spaDirectory, false)
	fileserver := http.FileServer(directory)
	if urlPrefix != "" {
		fileserver = http.StripPrefix(urlPrefix, fileserver)
	}
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.AbortWithStatus(http.StatusMethodNotAllowed)
			return
		}
		rel := path.Clean("/" + strings.TrimPrefix(c.Request.URL.Path, urlPrefix))
		if rel == "/" || !directory.Exists(urlPrefix, c.Request.URL.Path) {
			rel = "/"
			c.Request.URL.Path = urlPrefix + "/"
		}
		fileserver.ServeHTTP(&cacheControlWriter{ResponseWriter: c.Writer, path: rel}, c.Request)
		c.Abort()
	}
}
