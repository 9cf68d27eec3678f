package web

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/maxportland/metalman/sampler"
	"github.com/maxportland/metalman/status"
	"github.com/maxportland/metalman/webutils"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func listByExtension(exts ...string) ([]string, error) {
	entries, err := os.ReadDir(ServerDirectory)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to list %q", ServerDirectory)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		for _, want := range exts {
			if ext == want {
				files = append(files, entry.Name())
				break
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

func HandlerAjaxArchives(w http.ResponseWriter, r *http.Request) {
	if files, err := listByExtension(".glb", ".fbz"); err != nil {
		webutils.WriteError(w, err)
	} else {
		webutils.WriteJson(w, files)
	}
}

func HandlerAjaxAnimations(w http.ResponseWriter, r *http.Request) {
	if files, err := listByExtension(".json"); err != nil {
		webutils.WriteError(w, err)
	} else {
		webutils.WriteJson(w, files)
	}
}

// HandlerAjaxAnimation parses a sampled animation document and returns
// its header (everything but the keyframes) so the ui can list clips
// without pulling megabytes of matrices.
func HandlerAjaxAnimation(w http.ResponseWriter, r *http.Request) {
	file := filepath.Base(mux.Vars(r)["file"])

	data, err := os.ReadFile(filepath.Join(ServerDirectory, file))
	if err != nil {
		webutils.WriteError(w, err)
		return
	}

	var doc sampler.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		webutils.WriteError(w, errors.Wrapf(err, "%q is not an animation document", file))
		return
	}
	doc.Keyframes = nil
	webutils.WriteJson(w, &doc)
}

func HandlerDumpFile(w http.ResponseWriter, r *http.Request) {
	file := filepath.Base(mux.Vars(r)["file"])

	f, err := os.Open(filepath.Join(ServerDirectory, file))
	if err != nil {
		webutils.WriteError(w, err)
		return
	}
	defer f.Close()

	webutils.WriteFile(w, f, file)
}

func HandlerWebsocketStatus(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[web] ws upgrade error: %v", err)
		return
	}
	status.NewClient(conn)
}
