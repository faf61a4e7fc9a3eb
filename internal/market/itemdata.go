package market

import (
	"encoding/json"
	"strings"
)

// itemData is the JSON payload a seller embeds in ItemListed.itemData.
type itemData struct {
	AgentID     string
	Title       string
	Description string
	Category    string
	Location    string
	Images      []string
	Metadata    map[string]any
}

// parseItemData never fails. Anything that is not a JSON object is kept
// verbatim under metadata.raw and every field takes its default.
func parseItemData(raw string) itemData {
	out := itemData{
		AgentID:  "unknown",
		Title:    "Untitled",
		Category: "other",
		Images:   []string{},
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil || obj == nil {
		out.Metadata = map[string]any{"raw": raw}
		return out
	}
	out.Metadata = obj
	if v := stringField(obj, "agentId"); v != "" {
		out.AgentID = v
	}
	if v := stringField(obj, "title"); v != "" {
		out.Title = v
	}
	out.Description = stringField(obj, "description")
	if v := stringField(obj, "category"); v != "" {
		out.Category = v
	}
	out.Location = stringField(obj, "location")
	if imgs, ok := obj["images"].([]any); ok {
		for _, img := range imgs {
			if s, ok := img.(string); ok && s != "" {
				out.Images = append(out.Images, s)
			}
		}
	}
	return out
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return strings.TrimSpace(s)
}
