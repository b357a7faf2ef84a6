package main

import (
	"flag"
	"log"

	"github.com/danmuck/framelink/internal/config"
)

func defaultPath(kind string) string {
	switch kind {
	case "launcher":
		return "cmd/launcherctl/config.toml"
	case "sdk":
		return "cmd/sdkctl/config.toml"
	case "handler":
		return "cmd/launcherctl/launcher-iframe-handler.js"
	default:
		log.Fatalf("unknown kind: %s", kind)
		return ""
	}
}

func main() {
	kind := flag.String("kind", "launcher", "config kind: launcher|sdk|handler")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing launcher config file")
	input := flag.String("input", "", "config path for validation (defaults to per-kind cmd path)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		if *kind != "launcher" {
			log.Fatalf("validation is only supported for kind launcher (sdkctl validates its own config on start)")
		}
		path := *input
		if path == "" {
			path = defaultPath(*kind)
		}
		if _, err := config.LoadLauncherConfig(path); err != nil {
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
	log.Printf("Wrote %s template to %s", *kind, target)
}
