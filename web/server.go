// Package web serves a small preview surface over the export output
// directory: archive listings, file downloads and the live status socket.
package web

import (
	"log"
	"net/http"
	"os"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

var ServerDirectory string

func StartServer(addr string, outputDir string) error {
	ServerDirectory = outputDir

	r := mux.NewRouter()
	r.HandleFunc("/json/archives", HandlerAjaxArchives)
	r.HandleFunc("/json/animations", HandlerAjaxAnimations)
	r.HandleFunc("/json/animations/{file}", HandlerAjaxAnimation)
	r.HandleFunc("/dump/{file}", HandlerDumpFile)
	r.HandleFunc("/ws/status", HandlerWebsocketStatus)

	h := handlers.RecoveryHandler()(r)
	h = handlers.LoggingHandler(os.Stdout, h)

	log.Printf("[web] Starting server %v over %q", addr, outputDir)

	return http.ListenAndServe(addr, h)
}
