package main

import (
	"flag"
	"log"
	"os"
)

// envOrString returns the environment variable value if set, otherwise returns the default value.
func envOrString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func parseFlags() *Config {
	configPath := flag.String("config", envOrString("SAVINGSESSIONS_CONFIG", ""), "Optional YAML config file")
	apiKey := flag.String("apikey", envOrString("OCTOPUS_API_KEY", ""), "Octopus API key")
	account := flag.String("account", envOrString("OCTOPUS_ACCOUNT", ""), "Octopus account number (default: first account on the API key)")
	outCSV := flag.String("out", envOrString("OUTPUT_CSV", ""), "Output CSV file (optional)")
	cacheDir := flag.String("cache", envOrString("CACHE_DIR", "disable"), "Directory for HTTP cache ('disable' to disable, empty for temporary directory)")
	debug := flag.Bool("debug", false, "Verbose calculation logging")
	flag.Parse()

	config := &Config{
		APIKey:         *apiKey,
		Account:        *account,
		OutputCSV:      *outCSV,
		CacheDirectory: *cacheDir,
		Debug:          *debug,
	}

	if *configPath != "" {
		fileConfig, err := loadFileConfig(*configPath)
		if err != nil {
			log.Fatalf("Invalid config file: %v", err)
		}
		fileConfig.merge(config)
	}

	if config.APIKey == "" {
		log.Fatalf("Required flags missing. Usage: %s -apikey=sk_live_... [-account=A-...]", os.Args[0])
	}

	return config
}

func main() {
	config := parseFlags()
	app := NewApp(config)

	if err := app.Run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}
