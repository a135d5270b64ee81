// ABOUTME: Entry point for the hubsync CLI and MCP server
// ABOUTME: Loads configuration and routes to sync, site, status, daemon, or MCP commands
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/harperreed/hubsync/cli"
	"github.com/harperreed/hubsync/config"
	"github.com/harperreed/hubsync/db"
	"github.com/joho/godotenv"
)

const version = "0.1.0"

func main() {
	// Global flags
	showVersion := flag.Bool("version", false, "Show version and exit")
	configPath := flag.String("config", "", "Config file path (default: ~/.config/hubsync/config.toml)")
	dbPath := flag.String("db-path", "", "Database path (default: ~/.local/share/hubsync/hubsync.db)")
	initOnly := flag.Bool("init", false, "Initialize database and exit")

	// Parse global flags but don't fail on unknown (for subcommands)
	_ = flag.CommandLine.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("hubsync version %s\n", version)
		os.Exit(0)
	}

	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	args := flag.Args()
	if len(args) == 0 && !*initOnly {
		printUsage()
		os.Exit(0)
	}

	database, err := db.OpenDatabase(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	if *initOnly {
		log.Printf("Database initialized at %s", cfg.DBPath)
		return
	}

	if err := run(database, cfg, args[0], args[1:]); err != nil {
		// Deferred close does not run on os.Exit.
		_ = database.Close()
		fmt.Fprintf(os.Stderr, "command failed: %v\n", err)
		os.Exit(1)
	}
}

func run(database *sql.DB, cfg config.Config, command string, args []string) error {
	switch command {
	case "sync":
		return cli.SyncCommand(database, cfg, args)
	case "daemon":
		return cli.DaemonCommand(database, cfg, args)
	case "sites":
		return cli.SitesCommand(database, cfg, args)
	case "site-add":
		return cli.SiteAddCommand(database, cfg, args)
	case "status":
		return cli.StatusCommand(database, args)
	case "mcp":
		return cli.MCPCommand(database, cfg, version)
	case "version":
		fmt.Printf("hubsync version %s\n", version)
		return nil
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
	return nil
}

func printUsage() {
	fmt.Printf(`hubsync v%s - HubSpot contact sync for multi-site learning platforms

USAGE:
  hubsync [global flags] <command> [flags]

GLOBAL FLAGS:
  --version              Show version and exit
  --config <path>        Config file path (default: ~/.config/hubsync/config.toml)
  --db-path <path>       Database path (default: ~/.local/share/hubsync/hubsync.db)
  --init                 Initialize database and exit

COMMANDS:
  sync                   Sync recently joined users into HubSpot
    --initial-sync-days <n>  Days before today to pick users from (default: 1)
    --batch-size <n>         Contacts per HubSpot batch (default: 100)
    --site <domain>          Only sync this site

  daemon                 Run the sync on a schedule until interrupted
    --schedule <spec>        Cron expression or descriptor (default: from config, @daily)
    --initial-sync-days <n>  Days before today to pick users from (default: 1)
    --batch-size <n>         Contacts per HubSpot batch (default: 100)
    --run-now                Sync once immediately on start

  sites                  List HubSpot-enabled sites
    --all                    Include sites that are not HubSpot enabled

  site-add               Create a local site or update the HubSpot keys given
    --domain <domain>        Site domain (required)
    --name <name>            Display name (default: domain for new sites)
    --api-key <token>        HubSpot private app token
    --app-id <id>            HubSpot app ID attributed to this site's writes
    --disabled               Save the configuration as disabled

  status                 Show per-site sync status
    --site <domain>          Show the batches of this site's last run

  mcp                    Start MCP server for Claude Desktop
  version                Show version

ENVIRONMENT:
  HUBSYNC_DB_PATH, HUBSYNC_HUBSPOT_BASE_URL, HUBSYNC_REQUEST_TIMEOUT,
  HUBSYNC_PLATFORM_DSN, HUBSYNC_SCHEDULE override the config file.
  A .env file in the working directory is loaded first.

EXAMPLES:
  # Sync users who joined yesterday or today
  hubsync sync

  # Backfill a week in batches of 50
  hubsync sync --initial-sync-days 7 --batch-size 50

  # Register a site
  hubsync site-add --domain learn.example.org --api-key pat-na1-... --app-id 424242

`, version)
}
