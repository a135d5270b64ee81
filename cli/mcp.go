// ABOUTME: MCP server subcommand
// ABOUTME: Starts the MCP server exposing HubSpot sync tools and resources
package cli

import (
	"context"
	"database/sql"
	"log"
	"os"

	"github.com/harperreed/hubsync/config"
	"github.com/harperreed/hubsync/db"
	"github.com/harperreed/hubsync/handlers"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCPCommand starts the MCP server on stdio
func MCPCommand(database *sql.DB, cfg config.Config, version string) error {
	log.Println("Starting hubsync MCP Server...")

	ctx := context.Background()

	platform, closePlatform, err := openPlatform(ctx, database, cfg)
	if err != nil {
		return err
	}
	defer closePlatform()

	// stdout carries the protocol; sync progress goes to stderr.
	syncer := newSyncer(platform, database, cfg, os.Stderr)

	hubspotHandlers := handlers.NewHubSpotHandlers(platform, db.NewSyncStateRepository(database), syncer)
	resourceHandlers := handlers.NewResourceHandlers(hubspotHandlers)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "hubsync",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_hubspot_sites",
		Description: "List sites that sync users into HubSpot, with their HubSpot app IDs",
	}, hubspotHandlers.ListHubSpotSites)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_sync_status",
		Description: "Show the last HubSpot sync state for one site or all sites",
	}, hubspotHandlers.GetSyncStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_site",
		Description: "Sync recently joined users of one site into HubSpot contacts",
	}, hubspotHandlers.SyncSite)

	server.AddResource(&mcp.Resource{
		URI:         handlers.SitesResourceURI,
		Name:        "sites",
		Description: "HubSpot-enabled sites",
		MIMEType:    "application/json",
	}, resourceHandlers.ReadResource)

	server.AddResource(&mcp.Resource{
		URI:         handlers.StatusResourceURI,
		Name:        "status",
		Description: "Per-site HubSpot sync status",
		MIMEType:    "application/json",
	}, resourceHandlers.ReadResource)

	return server.Run(ctx, &mcp.StdioTransport{})
}
