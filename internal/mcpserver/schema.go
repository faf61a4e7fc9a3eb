package mcpserver

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// requireListingID reads an on-chain listing id. JSON numbers arrive as
// float64, so fractional or negative values are rejected here.
func requireListingID(request mcp.CallToolRequest) (int64, *mcp.CallToolResult) {
	v, err := request.RequireFloat("listing_id")
	if err != nil {
		return 0, toolError("invalid_request", err.Error())
	}
	if v < 0 || v != math.Trunc(v) || v > math.MaxInt64 {
		return 0, toolError("invalid_listing_id", fmt.Sprintf("listing_id must be a non-negative integer, got %v", v))
	}
	return int64(v), nil
}

// pageArgs turns the optional page and limit numbers into the string form the
// services parse. Zero means "use the default".
func pageArgs(request mcp.CallToolRequest) (string, string) {
	return optionalInt(request, "page"), optionalInt(request, "limit")
}

func optionalInt(request mcp.CallToolRequest, key string) string {
	v := request.GetInt(key, 0)
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

func requireStrings(request mcp.CallToolRequest, keys ...string) (map[string]string, *mcp.CallToolResult) {
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		v, err := request.RequireString(k)
		if err != nil {
			return nil, toolError("invalid_request", err.Error())
		}
		out[k] = strings.TrimSpace(v)
	}
	return out, nil
}

func ptr[T any](v T) *T {
	return &v
}
