package main

import (
	"flag"
	"log"

	"github.com/danmuck/echoframe/internal/config"
)

func main() {
	kind := flag.String("kind", config.KindServer, "config kind: server|client")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to per-kind cmd path)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		path := *input
		if path == "" {
			path = defaultPath(*kind)
		}
		if err := validateFile(*kind, path); err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated %s config at %s", *kind, path)
		return
	}

	target := *output
	if target == "" {
		target = defaultPath(*kind)
	}
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, target)
}

func defaultPath(kind string) string {
	switch kind {
	case config.KindServer:
		return "cmd/echoserver/config.toml"
	case config.KindClient:
		return "cmd/echoclient/config.toml"
	default:
		log.Fatalf("unknown kind: %s", kind)
		return ""
	}
}

func validateFile(kind, path string) error {
	var err error
	switch kind {
	case config.KindServer:
		_, err = config.LoadServerConfig(path)
	case config.KindClient:
		_, err = config.LoadClientConfig(path)
	default:
		log.Fatalf("unknown kind: %s", kind)
	}
	return err
}
