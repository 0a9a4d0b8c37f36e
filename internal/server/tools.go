package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// noArgs is the input schema of tools that take no arguments.
func noArgs() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Sampling loop
		{
			Name:        "sampler_start",
			Description: "Start periodic sampling. Each cycle crops the selected region from the latest frame, preprocesses it, runs OCR, extracts the temperature and dispatches accepted readings to the current sink. Calling it while running re-arms the timer with the new interval. Fails if the sink cannot accept readings.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"interval_seconds": map[string]interface{}{
						"type":        "integer",
						"description": "Seconds between cycles, 1-600 (default: 5)",
						"minimum":     1,
						"maximum":     600,
					},
				},
			},
		},
		{
			Name:        "sampler_stop",
			Description: "Stop periodic sampling. A cycle already in progress is allowed to finish.",
			InputSchema: noArgs(),
		},
		{
			Name:        "sampler_trigger",
			Description: "Run one sampling cycle now and return its outcome. Works whether or not the timer is running; waits for an in-progress cycle first.",
			InputSchema: noArgs(),
		},
		{
			Name:        "sampler_status",
			Description: "Get the sampler state, interval, sink target, OCR language, processing parameters, region, reading filter and the most recent outcome.",
			InputSchema: noArgs(),
		},

		// Configuration
		{
			Name:        "sampler_set_params",
			Description: "Update image processing parameters. Only the fields given are changed; out-of-range values are clamped. Returns the parameters now in effect.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"contrast": map[string]interface{}{
						"type":        "number",
						"description": "Contrast multiplier around mid-gray, 0.01-4.0",
					},
					"brightness": map[string]interface{}{
						"type":        "number",
						"description": "Brightness multiplier, 0.01-3.0",
					},
					"sharpness": map[string]interface{}{
						"type":        "number",
						"description": "Sharpness factor, 0.01-3.0 (1.0 leaves the image unchanged)",
					},
					"threshold": map[string]interface{}{
						"type":        "integer",
						"description": "Global binary threshold, 0-255",
					},
					"blur": map[string]interface{}{
						"type":        "integer",
						"description": "Blur radius, 0-10 (accepted, currently not applied)",
					},
					"dilate": map[string]interface{}{
						"type":        "integer",
						"description": "Dilation size, 1-5 (1 disables)",
					},
					"erode": map[string]interface{}{
						"type":        "integer",
						"description": "Erosion size, 1-5 (1 disables)",
					},
					"gamma": map[string]interface{}{
						"type":        "number",
						"description": "Gamma, 0.1-5.0 (accepted, currently not applied)",
					},
					"adaptive_threshold": map[string]interface{}{
						"type":        "boolean",
						"description": "Use a Gaussian adaptive threshold instead of the global one",
					},
					"invert": map[string]interface{}{
						"type":        "boolean",
						"description": "Invert the binary image",
					},
					"denoise": map[string]interface{}{
						"type":        "integer",
						"description": "Non-local means strength, 0-20 (0 disables)",
					},
					"reset": map[string]interface{}{
						"type":        "boolean",
						"description": "Start from the defaults before applying the other fields",
					},
				},
			},
		},
		{
			Name:        "sampler_set_sink",
			Description: "Select where accepted readings go: the local SQLite database or a network address (http://, https://, mqtt://, kafka://).",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"kind": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"storage", "network"},
						"description": "Sink kind",
					},
					"address": map[string]interface{}{
						"type":        "string",
						"description": "Destination for the network sink, e.g. http://collector.local/readings",
					},
				},
				"required": []string{"kind"},
			},
		},
		{
			Name:        "sampler_set_region",
			Description: "Set the region of the frame that contains the temperature display. The region is clamped to the frame at sampling time.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"x": map[string]interface{}{
						"type":        "integer",
						"description": "Left edge X coordinate (0-based)",
					},
					"y": map[string]interface{}{
						"type":        "integer",
						"description": "Top edge Y coordinate (0-based)",
					},
					"width": map[string]interface{}{
						"type":        "integer",
						"description": "Region width in pixels",
					},
					"height": map[string]interface{}{
						"type":        "integer",
						"description": "Region height in pixels",
					},
				},
				"required": []string{"x", "y", "width", "height"},
			},
		},
		{
			Name:        "sampler_set_language",
			Description: "Set the Tesseract OCR language used by sampling cycles.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"language": map[string]interface{}{
						"type":        "string",
						"description": "Tesseract language code (default: tur)",
					},
				},
			},
		},

		// History
		{
			Name:        "sampler_recent_readings",
			Description: "Get the most recent stored readings, newest first. Reads the database when connected, otherwise the cached view.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"count": map[string]interface{}{
						"type":        "integer",
						"description": "Number of readings (default: 20)",
					},
				},
			},
		},
		{
			Name:        "sampler_outcomes",
			Description: "Get the outcomes of recent sampling cycles, newest first, including why readings were rejected.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"count": map[string]interface{}{
						"type":        "integer",
						"description": "Number of outcomes (default: 20)",
					},
				},
			},
		},

		// Inspection
		{
			Name:        "reading_extract",
			Description: "Extract a temperature from text. The general policy tries labelled patterns and a plausibility range; the sampling policy takes the first signed number, as sampling cycles do.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"text": map[string]interface{}{
						"type":        "string",
						"description": "Raw OCR text",
					},
					"policy": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"general", "sampling"},
						"description": "Extraction policy (default: general)",
					},
				},
				"required": []string{"text"},
			},
		},
		{
			Name:        "region_preview",
			Description: "Crop the selected region from the latest frame, apply the current processing parameters and return the result as base64-encoded PNG with pixel statistics and a suggested threshold.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"scale": map[string]interface{}{
						"type":        "number",
						"description": "Scale factor for the returned image (default: 1.0)",
					},
				},
			},
		},
		{
			Name:        "region_ocr",
			Description: "OCR the processed region once without dispatching. Returns the raw text, what both extraction policies make of it and, with Tesseract, each word with its frame coordinates.",
			InputSchema: noArgs(),
		},
		{
			Name:        "frame_preview",
			Description: "Return the latest frame as base64-encoded PNG with the selected region outlined and an optional coordinate grid. Use this to choose the region.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"grid_spacing": map[string]interface{}{
						"type":        "integer",
						"description": "Pixels between grid lines (default: 50, 0 disables)",
					},
					"show_coordinates": map[string]interface{}{
						"type":        "boolean",
						"description": "Label grid intersections with coordinates",
					},
					"grid_color": map[string]interface{}{
						"type":        "string",
						"description": "Grid color as hex (default: #FF000080)",
					},
					"scale": map[string]interface{}{
						"type":        "number",
						"description": "Scale factor for the returned image (default: 1.0)",
					},
				},
			},
		},
		{
			Name:        "ocr_info",
			Description: "Report the OCR engine, whether it is available and its version or model.",
			InputSchema: noArgs(),
		},

		// Storage
		{
			Name:        "storage_connect",
			Description: "Open the SQLite database, creating the readings table if needed, and load the recent readings.",
			InputSchema: noArgs(),
		},
		{
			Name:        "storage_disconnect",
			Description: "Close the SQLite database. Sampling to the storage sink fails until it is reconnected.",
			InputSchema: noArgs(),
		},
		{
			Name:        "storage_test",
			Description: "Check that the database answers queries and report how many readings it holds.",
			InputSchema: noArgs(),
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
