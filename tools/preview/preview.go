package main

import (
	"flag"
	"log"

	"github.com/maxportland/metalman/web"
)

func main() {
	var addr, dir string
	flag.StringVar(&addr, "i", ":8000", "Address of server")
	flag.StringVar(&dir, "dir", ".", "Export output directory to serve")
	flag.Parse()

	if err := web.StartServer(addr, dir); err != nil {
		log.Fatal(err)
	}
}
