package main

import "flag"

// cliFlags mirrors the teacher's cmd/cc-backend flag surface, narrowed to
// what a DMTP listener needs: a config file, an optional .env file, a
// one-shot schema migration, and a debugging agent toggle.
type cliFlags struct {
	configFile string
	envFile    string
	migrateDB  bool
	noServer   bool
	gops       bool
}

func parseFlags() cliFlags {
	var f cliFlags
	flag.StringVar(&f.configFile, "config", "./config.json", "Overwrite the default config with `config.json`")
	flag.StringVar(&f.envFile, "env", "./.env", "Load environment variables from `.env` before reading the config")
	flag.BoolVar(&f.migrateDB, "migrate-db", false, "Apply pending schema migrations and exit")
	flag.BoolVar(&f.noServer, "no-server", false, "Run initialization and migrations, then exit without listening")
	flag.BoolVar(&f.gops, "gops", false, "Listen via github.com/google/gops/agent (for debugging)")
	flag.Parse()
	return f
}
