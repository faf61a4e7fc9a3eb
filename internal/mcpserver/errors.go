package mcpserver

import (
	"errors"
	"fmt"

	appagent "agent-marketplace/internal/app/agent"
	applisting "agent-marketplace/internal/app/listing"
	apppurchase "agent-marketplace/internal/app/purchase"
	"agent-marketplace/internal/market"
	"agent-marketplace/internal/validation"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog/log"
)

func toolResult(data any) *mcp.CallToolResult {
	return mcp.NewToolResultStructuredOnly(data)
}

func toolError(code, message string) *mcp.CallToolResult {
	return toolErrorWith(code, message, nil)
}

func toolErrorWith(code, message string, extra map[string]any) *mcp.CallToolResult {
	body := map[string]any{
		"code":    code,
		"message": message,
	}
	for k, v := range extra {
		body[k] = v
	}
	result := mcp.NewToolResultStructured(
		map[string]any{"error": body},
		fmt.Sprintf("%s: %s", code, message),
	)
	result.IsError = true
	return result
}

// domainErrors lists the errors whose text is already the public code.
var domainErrors = []error{
	market.ErrListingNotFound,
	market.ErrListingExists,
	market.ErrListingNotActive,
	market.ErrSelfPurchase,
	market.ErrNoRequestedPurchase,
	market.ErrNoConfirmedPurchase,
	market.ErrInvalidTransition,
	market.ErrInvalidStatus,
	appagent.ErrAgentNotFound,
	appagent.ErrAgentExists,
	apppurchase.ErrTransactionNotFound,
	applisting.ErrInvalidListingID,
	apppurchase.ErrInvalidListingID,
}

func mapDomainError(tool string, err error) *mcp.CallToolResult {
	if err == nil {
		return toolError("internal_error", "unknown error")
	}
	var verr *validation.Error
	if errors.As(err, &verr) {
		return toolErrorWith(validation.ErrInvalid.Error(), err.Error(), map[string]any{"fields": verr.Fields})
	}
	var inProgress *market.InProgressError
	if errors.As(err, &inProgress) {
		return toolErrorWith(market.ErrPurchaseInProgress.Error(), err.Error(), map[string]any{"transaction": inProgress.Transaction})
	}
	for _, e := range domainErrors {
		if errors.Is(err, e) {
			return toolError(e.Error(), err.Error())
		}
	}
	log.Error().Err(err).Str("tool", tool).Msg("mcp_tool_failed")
	return toolError("internal_error", "internal error")
}
