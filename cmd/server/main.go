// Command server runs the mqttbench master: the web console on server.port
// and the slave control API on master.port.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/simp-lee/mqttbench/internal/app"
	"github.com/simp-lee/mqttbench/internal/config"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file (APP__ env vars override it)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Fprintln(os.Stdout, "mqttbench-server", version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("failed to load config: ", err)
	}

	a, err := app.New(cfg)
	if err != nil {
		log.Fatal("failed to create app: ", err)
	}

	if err := a.Run(); err != nil {
		log.Fatal("server error: ", err)
	}
}
