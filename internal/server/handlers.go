package server

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"path/filepath"

	"github.com/ironsheep/artgrid/internal/art"
	"github.com/ironsheep/artgrid/internal/compositor"
	"github.com/ironsheep/artgrid/internal/errors"
	"github.com/ironsheep/artgrid/internal/iiif"
	"github.com/ironsheep/artgrid/internal/layout"
	"github.com/ironsheep/artgrid/internal/resource"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "layout_create").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000
// and the error code (INPUT, RESOURCE_UNAVAILABLE, ...) in data.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		s.logger.Warn("tool failed", "tool", params.Name, "err", err)
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &MCPError{
				Code:    -32000,
				Message: "Tool execution failed",
				Data: map[string]string{
					"code":    string(errors.GetCode(err)),
					"details": err.Error(),
				},
			},
		}
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	case "image_dimensions":
		return s.handleImageDimensions(ctx, args)

	case "art_thumbnail":
		return s.handleArtThumbnail(ctx, args)
	case "art_to_canvas":
		return s.handleArtToCanvas(ctx, args)

	case "layout_create":
		return s.handleLayoutCreate(ctx, args)
	case "layout_to_iiif":
		return s.handleLayoutToIIIF(ctx, args)
	case "layout_assemble":
		return s.handleLayoutAssemble(ctx, args)

	default:
		return nil, errors.Input("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure it returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

func decodeArgs(args json.RawMessage, v interface{}) error {
	if len(args) == 0 {
		args = []byte("{}")
	}
	if err := json.Unmarshal(args, v); err != nil {
		return errors.Wrap(errors.CodeInput, err, "invalid arguments")
	}
	return nil
}

// === Image Handlers ===

type imageDimensionsArgs struct {
	Path string `json:"path"`
}

type imageDimensionsResult struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Orientation int    `json:"orientation,omitempty"`
	Format      string `json:"format"`
}

func (s *Server) handleImageDimensions(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a imageDimensionsArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	r, err := s.cache.Get(a.Path)
	if err != nil {
		return nil, err
	}
	d, err := r.Dimensions(ctx)
	if err != nil {
		return nil, err
	}
	format, err := r.Format(ctx)
	if err != nil {
		return nil, err
	}
	return imageDimensionsResult{Width: d.Width, Height: d.Height, Orientation: d.Orientation, Format: format}, nil
}

// === Art Item Handlers ===

func (s *Server) decodeItem(raw json.RawMessage) (*art.Item, error) {
	if len(raw) == 0 {
		return nil, errors.Input("item is required")
	}
	in, err := art.DecodeInput(raw)
	if err != nil {
		return nil, err
	}
	return art.FromInput(s.svc, in)
}

type artThumbnailArgs struct {
	Item    json.RawMessage `json:"item"`
	Width   int             `json:"width"`
	SaveDir string          `json:"save_dir"`
}

func (s *Server) handleArtThumbnail(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a artThumbnailArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	it, err := s.decodeItem(a.Item)
	if err != nil {
		return nil, err
	}
	if a.SaveDir == "" {
		a.SaveDir = filepath.Join(s.cfg.OutputDir, "thumbnails")
	}
	if _, err := it.CreateThumbnail(ctx, a.Width, resource.ThumbnailOptions{SaveDir: a.SaveDir}); err != nil {
		return nil, err
	}
	return it.ToFlat()
}

type iiifArgs struct {
	ID       string   `json:"id"`
	Kind     string   `json:"kind"`
	Exclude  []string `json:"exclude"`
	SaveDir  string   `json:"save_dir"`
	SaveJSON bool     `json:"save_json"`
}

func (a iiifArgs) options() art.IIIFOptions {
	return art.IIIFOptions{Exclude: a.Exclude, SaveDir: a.SaveDir, SaveJSON: a.SaveJSON}
}

type artToCanvasArgs struct {
	iiifArgs
	Item json.RawMessage `json:"item"`
}

func (s *Server) handleArtToCanvas(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a artToCanvasArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	it, err := s.decodeItem(a.Item)
	if err != nil {
		return nil, err
	}
	switch a.Kind {
	case "", iiif.TypeCanvas:
		return it.ToCanvas(ctx, a.ID, a.options())
	case iiif.TypeManifest:
		return it.ToManifest(ctx, a.ID, a.options())
	default:
		return nil, errors.Input("unknown kind %q (want Canvas or Manifest)", a.Kind)
	}
}

// === Layout Handlers ===

type layoutCreateArgs struct {
	Items          []json.RawMessage `json:"items"`
	Name           string            `json:"name"`
	Ratio          float64           `json:"ratio"`
	Rows           int               `json:"rows"`
	Cols           int               `json:"cols"`
	ThumbnailWidth int               `json:"thumbnail_width"`
	Seed           *uint64           `json:"seed"`
}

func (s *Server) handleLayoutCreate(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a layoutCreateArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if len(a.Items) == 0 {
		return nil, errors.Input("items must list at least one art item")
	}

	pool := make([]*art.Item, 0, len(a.Items))
	for i, raw := range a.Items {
		it, err := s.decodeItem(raw)
		if err != nil {
			return nil, errors.Annotate(err, "item %d", i)
		}
		pool = append(pool, it)
	}

	opts := layout.Options{
		Name:           a.Name,
		Pool:           pool,
		NumRows:        a.Rows,
		NumCols:        a.Cols,
		Ratio:          a.Ratio,
		ThumbnailWidth: a.ThumbnailWidth,
	}
	if opts.ThumbnailWidth == 0 {
		opts.ThumbnailWidth = s.cfg.ThumbnailWidth
	}
	if opts.Ratio == 0 && opts.NumRows == 0 && opts.NumCols == 0 {
		opts.Ratio = s.cfg.Ratio
	}
	if a.Seed != nil {
		opts.Rand = rand.New(rand.NewPCG(*a.Seed, *a.Seed))
	}

	l, err := layout.New(ctx, s.svc, opts)
	if err != nil {
		return nil, err
	}
	if err := s.remember(ctx, l); err != nil {
		return nil, err
	}
	return l.ToFlat()
}

// remember keeps the layout for later calls in this session and records it
// in the store when one is configured.
func (s *Server) remember(ctx context.Context, l *layout.Layout) error {
	s.mu.Lock()
	s.layouts[l.ID] = l
	s.mu.Unlock()

	if s.store == nil {
		return nil
	}
	return l.Save(ctx, s.store)
}

// findLayout prefers the session's copy, which may hold in-memory
// thumbnails, over the stored record.
func (s *Server) findLayout(ctx context.Context, id string) (*layout.Layout, error) {
	if id == "" {
		return nil, errors.Input("layout id is required")
	}
	s.mu.Lock()
	l, ok := s.layouts[id]
	s.mu.Unlock()
	if ok {
		return l, nil
	}
	if s.store == nil {
		return nil, errors.New(errors.CodeResourceUnavailable, "no layout with id %s", id)
	}
	l, err := layout.Lookup(ctx, s.svc, s.store, id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.layouts[id]; ok {
		return existing, nil
	}
	s.layouts[id] = l
	return l, nil
}

type layoutToIIIFArgs struct {
	iiifArgs
	BaseID string `json:"base_id"`
}

func (s *Server) handleLayoutToIIIF(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a layoutToIIIFArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	l, err := s.findLayout(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	if a.Kind == "" {
		a.Kind = iiif.TypeManifest
	}
	return l.ToIIIF(ctx, a.Kind, layout.IIIFOptions{IIIFOptions: a.options(), BaseID: a.BaseID})
}

type layoutAssembleArgs struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	Dir        string `json:"dir"`
	BaseURL    string `json:"base_url"`
	Background string `json:"background"`
}

type layoutAssembleResult struct {
	ID         string            `json:"id"`
	Output     string            `json:"output"`
	Width      int               `json:"width"`
	Height     int               `json:"height"`
	CellWidth  int               `json:"cellWidth"`
	CellHeight int               `json:"cellHeight"`
	Cells      int               `json:"cells"`
	Skipped    []compositor.Skip `json:"skipped,omitempty"`
}

func (s *Server) handleLayoutAssemble(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a layoutAssembleArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	l, err := s.findLayout(ctx, a.ID)
	if err != nil {
		return nil, err
	}

	kind := a.Kind
	if kind == "" {
		kind = s.cfg.OutputKind
	}
	k, err := resource.ParseKind(kind)
	if err != nil {
		return nil, err
	}
	opts := compositor.Options{
		Background:  a.Background,
		Concurrency: s.cfg.Concurrency,
		Kind:        k,
		Dir:         a.Dir,
		BaseURL:     a.BaseURL,
		Logger:      s.logger,
	}
	if opts.Background == "" {
		opts.Background = s.cfg.Background
	}
	if opts.Dir == "" {
		opts.Dir = s.cfg.OutputDir
	}
	if opts.BaseURL == "" {
		opts.BaseURL = s.cfg.BaseURL
	}

	gc, err := compositor.Assemble(ctx, l, opts)
	if err != nil {
		return nil, err
	}
	if s.store != nil {
		// Thumbnails made during compositing are in memory until persisted.
		thumbs := filepath.Join(opts.Dir, "thumbnails")
		for _, it := range l.Items() {
			if err := it.Persist(ctx, thumbs); err != nil {
				return nil, errors.Annotate(err, "persist thumbnails of %s", it.SourceName)
			}
		}
		if err := l.Save(ctx, s.store); err != nil {
			return nil, errors.Annotate(err, "assembled %s but could not record it", l.ID)
		}
	}
	return layoutAssembleResult{
		ID:         l.ID,
		Output:     gc.Item.Source().ID(),
		Width:      gc.Canvas.Width,
		Height:     gc.Canvas.Height,
		CellWidth:  gc.Canvas.CellWidth,
		CellHeight: gc.Canvas.CellHeight,
		Cells:      len(gc.Canvas.Blocks),
		Skipped:    gc.Canvas.Skipped,
	}, nil
}
