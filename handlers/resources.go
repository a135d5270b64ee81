// ABOUTME: MCP resource handlers for exposing sync data
// ABOUTME: Provides read-only access to HubSpot sites and sync status via URI
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	SitesResourceURI  = "hubsync://sites"
	StatusResourceURI = "hubsync://status"
)

type ResourceHandlers struct {
	hubspot *HubSpotHandlers
}

func NewResourceHandlers(hubspot *HubSpotHandlers) *ResourceHandlers {
	return &ResourceHandlers{hubspot: hubspot}
}

// ReadResource handles resource read requests
func (h *ResourceHandlers) ReadResource(ctx context.Context, request *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := request.Params.URI
	if !strings.HasPrefix(uri, "hubsync://") {
		return nil, fmt.Errorf("invalid URI scheme: expected hubsync://")
	}

	switch uri {
	case SitesResourceURI:
		_, out, err := h.hubspot.ListHubSpotSites(ctx, nil, ListSitesInput{})
		if err != nil {
			return nil, err
		}
		return jsonResource(uri, out)

	case StatusResourceURI:
		_, out, err := h.hubspot.GetSyncStatus(ctx, nil, SyncStatusInput{})
		if err != nil {
			return nil, err
		}
		return jsonResource(uri, out)

	default:
		return nil, fmt.Errorf("unknown resource: %s", strings.TrimPrefix(uri, "hubsync://"))
	}
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}

	return &mcp.ReadResourceResult{Contents: []*mcp.ResourceContents{
		{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}}, nil
}
