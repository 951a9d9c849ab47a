package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// itemSchema describes an art item document in any accepted input shape.
var itemSchema = map[string]interface{}{
	"type":        "object",
	"description": "Art item: {source, thumbnails, metadata}, the legacy {orig, ...} shape, or an IIIF Canvas/Manifest",
}

var excludeSchema = map[string]interface{}{
	"type": "array",
	"items": map[string]interface{}{
		"type": "string",
		"enum": []string{"thumbnails", "metadata"},
	},
	"description": "Fields to omit from the IIIF output",
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Images
		{
			Name:        "image_dimensions",
			Description: "Get the width, height, EXIF orientation and MIME type of an image path or URL.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Image file path or http(s) URL",
					},
				},
				"required": []string{"path"},
			},
		},

		// Art items
		{
			Name:        "art_thumbnail",
			Description: "Generate a JPEG thumbnail of an art item at the given width, save it, and return the item's flat document.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"item": itemSchema,
					"width": map[string]interface{}{
						"type":        "integer",
						"description": "Thumbnail width in pixels; height keeps the aspect ratio",
					},
					"save_dir": map[string]interface{}{
						"type":        "string",
						"description": "Directory for the thumbnail. Default <output_dir>/thumbnails",
					},
				},
				"required": []string{"item", "width"},
			},
		},
		{
			Name:        "art_to_canvas",
			Description: "Describe an art item as an IIIF Presentation 3 Canvas or Manifest.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"item": itemSchema,
					"id": map[string]interface{}{
						"type":        "string",
						"description": "IIIF id of the generated Canvas or Manifest",
					},
					"kind": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"Canvas", "Manifest"},
						"description": "Document type. Default Canvas",
					},
					"exclude":   excludeSchema,
					"save_dir":  map[string]interface{}{"type": "string", "description": "Directory for in-memory images and saved JSON"},
					"save_json": map[string]interface{}{"type": "boolean", "description": "Also save the document as <save_dir>/<name>.json"},
				},
				"required": []string{"item", "id"},
			},
		},

		// Layouts
		{
			Name:        "layout_create",
			Description: "Place art items randomly into a grid layout. Give either a ratio or rows and cols. Returns the layout's flat document including its id.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"items": map[string]interface{}{
						"type":        "array",
						"items":       itemSchema,
						"description": "Pool of art items to place",
					},
					"name": map[string]interface{}{
						"type":        "string",
						"description": "Layout name, used for output file names",
					},
					"ratio": map[string]interface{}{
						"type":        "number",
						"description": "Grid width/height ratio. Default from config (9/16)",
					},
					"rows":            map[string]interface{}{"type": "integer", "description": "Explicit row count"},
					"cols":            map[string]interface{}{"type": "integer", "description": "Explicit column count"},
					"thumbnail_width": map[string]interface{}{"type": "integer", "description": "Cell width in pixels. Default from config"},
					"seed": map[string]interface{}{
						"type":        "integer",
						"description": "Seed for reproducible placement",
					},
				},
				"required": []string{"items"},
			},
		},
		{
			Name:        "layout_to_iiif",
			Description: "Describe a layout as an IIIF Manifest (one Canvas per cell) or Collection (one Manifest per cell), in row-major order.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"id": map[string]interface{}{
						"type":        "string",
						"description": "Layout id returned by layout_create or saved in the store",
					},
					"kind": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"Manifest", "Collection"},
						"description": "Document type. Default Manifest",
					},
					"base_id":   map[string]interface{}{"type": "string", "description": "Prefix for generated IIIF ids"},
					"exclude":   excludeSchema,
					"save_dir":  map[string]interface{}{"type": "string", "description": "Directory for in-memory images and saved JSON"},
					"save_json": map[string]interface{}{"type": "boolean", "description": "Also save the document as <save_dir>/<layout name>.json"},
				},
				"required": []string{"id"},
			},
		},
		{
			Name:        "layout_assemble",
			Description: "Composite a layout's thumbnails into one image and write it as a tiled TIFF, IIIF tile directory or Deep Zoom tiles. Cells that fail to load are skipped and reported.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"id": map[string]interface{}{
						"type":        "string",
						"description": "Layout id",
					},
					"kind": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"tiff", "iiif", "dzi"},
						"description": "Output kind. Default from config",
					},
					"dir":        map[string]interface{}{"type": "string", "description": "Output directory. Default from config"},
					"base_url":   map[string]interface{}{"type": "string", "description": "Public URL of dir, for IIIF service ids"},
					"background": map[string]interface{}{"type": "string", "description": "Canvas colour as #RRGGBB"},
				},
				"required": []string{"id"},
			},
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
