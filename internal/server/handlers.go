package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ironsheep/thermo-ocr/internal/imaging"
	"github.com/ironsheep/thermo-ocr/internal/ocr"
	"github.com/ironsheep/thermo-ocr/internal/preprocess"
	"github.com/ironsheep/thermo-ocr/internal/reading"
	"github.com/ironsheep/thermo-ocr/internal/sampler"
	"github.com/ironsheep/thermo-ocr/internal/sink"
)

const (
	defaultInterval    = 5
	defaultGridSpacing = 50
	defaultGridColor   = "#FF000080"
	maxCount           = 1000
)

var (
	errNoFrame   = errors.New("no frame available")
	errNoStorage = errors.New("no database configured")
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "sampler_start", "region_preview").
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
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		s.log.WithError(err).WithField("tool", params.Name).Debug("Tool failed")
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
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
	// Sampling loop
	case "sampler_start":
		return s.handleSamplerStart(args)
	case "sampler_stop":
		s.loop.Stop()
		return s.loop.Status(), nil
	case "sampler_trigger":
		return s.loop.TriggerOnce(ctx)
	case "sampler_status":
		return s.loop.Status(), nil

	// Configuration
	case "sampler_set_params":
		return s.handleSetParams(args)
	case "sampler_set_sink":
		return s.handleSetSink(ctx, args)
	case "sampler_set_region":
		return s.handleSetRegion(args)
	case "sampler_set_language":
		return s.handleSetLanguage(args)

	// History
	case "sampler_recent_readings":
		return s.handleRecentReadings(ctx, args)
	case "sampler_outcomes":
		return s.handleOutcomes(args)

	// Inspection
	case "reading_extract":
		return s.handleReadingExtract(args)
	case "region_preview":
		return s.handleRegionPreview(args)
	case "region_ocr":
		return s.handleRegionOCR(ctx)
	case "frame_preview":
		return s.handleFramePreview(args)
	case "ocr_info":
		return s.handleOCRInfo(ctx), nil

	// Storage
	case "storage_connect":
		return s.handleStorageConnect(ctx)
	case "storage_disconnect":
		return s.handleStorageDisconnect()
	case "storage_test":
		return s.handleStorageTest(ctx)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
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
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// decodeArgs unmarshals tool arguments. Missing arguments leave v unchanged.
func decodeArgs(args json.RawMessage, v interface{}) error {
	if len(args) == 0 || string(args) == "null" {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// === Sampling Loop Handlers ===

type samplerStartArgs struct {
	IntervalSeconds int `json:"interval_seconds"`
}

func (s *Server) handleSamplerStart(args json.RawMessage) (interface{}, error) {
	a := samplerStartArgs{IntervalSeconds: defaultInterval}
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if err := s.loop.Start(a.IntervalSeconds); err != nil {
		return nil, err
	}
	return s.loop.Status(), nil
}

// === Configuration Handlers ===

// setParamsArgs holds optional overrides; nil fields keep the current value.
type setParamsArgs struct {
	Contrast   *float64 `json:"contrast"`
	Brightness *float64 `json:"brightness"`
	Sharpness  *float64 `json:"sharpness"`
	Threshold  *int     `json:"threshold"`
	Blur       *int     `json:"blur"`
	Dilate     *int     `json:"dilate"`
	Erode      *int     `json:"erode"`
	Gamma      *float64 `json:"gamma"`
	Adaptive   *bool    `json:"adaptive_threshold"`
	Invert     *bool    `json:"invert"`
	Denoise    *int     `json:"denoise"`
	Reset      bool     `json:"reset"`
}

func (a setParamsArgs) apply(p preprocess.Params) preprocess.Params {
	if a.Reset {
		p = preprocess.DefaultParams()
	}
	if a.Contrast != nil {
		p.Contrast = *a.Contrast
	}
	if a.Brightness != nil {
		p.Brightness = *a.Brightness
	}
	if a.Sharpness != nil {
		p.Sharpness = *a.Sharpness
	}
	if a.Threshold != nil {
		p.Threshold = *a.Threshold
	}
	if a.Blur != nil {
		p.Blur = *a.Blur
	}
	if a.Dilate != nil {
		p.Dilate = *a.Dilate
	}
	if a.Erode != nil {
		p.Erode = *a.Erode
	}
	if a.Gamma != nil {
		p.Gamma = *a.Gamma
	}
	if a.Adaptive != nil {
		p.Adaptive = *a.Adaptive
	}
	if a.Invert != nil {
		p.Invert = *a.Invert
	}
	if a.Denoise != nil {
		p.Denoise = *a.Denoise
	}
	return p
}

func (s *Server) handleSetParams(args json.RawMessage) (interface{}, error) {
	var a setParamsArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	return s.loop.SetParams(a.apply(s.loop.Params())), nil
}

type setSinkArgs struct {
	Kind    string `json:"kind"`
	Address string `json:"address"`
}

func (s *Server) handleSetSink(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a setSinkArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}

	var store sink.Store
	if s.storage != nil {
		store = s.storage
	}
	target, err := sink.ParseTarget(a.Kind, a.Address, store)
	if err != nil {
		return nil, err
	}
	if _, ok := target.(sink.Storage); ok && store == nil {
		return nil, fmt.Errorf("%w: %w", sink.ErrInvalidConfiguration, errNoStorage)
	}
	if err := s.loop.SetTarget(target); err != nil {
		return nil, err
	}
	if err := s.loop.RefreshRecent(ctx); err != nil {
		s.log.WithError(err).Warn("Could not refresh recent readings")
	}
	return s.loop.Status(), nil
}

type setRegionArgs struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (s *Server) handleSetRegion(args json.RawMessage) (interface{}, error) {
	var a setRegionArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	r := imaging.Region{X: a.X, Y: a.Y, Width: a.Width, Height: a.Height}
	if err := s.selection.SetRegion(r); err != nil {
		return nil, err
	}

	result := map[string]interface{}{"region": r}
	if frame := s.frames.CurrentFrame(); frame != nil {
		clamped := r.Clamp(frame.Width(), frame.Height())
		result["frame_width"] = frame.Width()
		result["frame_height"] = frame.Height()
		result["effective_region"] = clamped
		if clamped.Empty() {
			result["warning"] = "region lies outside the current frame"
		}
	}
	return result, nil
}

type setLanguageArgs struct {
	Language string `json:"language"`
}

func (s *Server) handleSetLanguage(args json.RawMessage) (interface{}, error) {
	var a setLanguageArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	s.loop.SetLanguage(a.Language)
	return map[string]interface{}{"language": s.loop.Language()}, nil
}

// === History Handlers ===

type countArgs struct {
	Count int `json:"count"`
}

func parseCountArgs(args json.RawMessage) (int, error) {
	a := countArgs{Count: sampler.DefaultRecentCount}
	if err := decodeArgs(args, &a); err != nil {
		return 0, err
	}
	if a.Count < 1 {
		return 0, fmt.Errorf("count must be positive, got %d", a.Count)
	}
	return min(a.Count, maxCount), nil
}

type readingsResult struct {
	Readings []reading.SensorReading `json:"readings"`
	Count    int                     `json:"count"`
	Source   string                  `json:"source"`
}

func (s *Server) handleRecentReadings(ctx context.Context, args json.RawMessage) (interface{}, error) {
	count, err := parseCountArgs(args)
	if err != nil {
		return nil, err
	}

	if s.storage != nil && s.storage.IsConnected() {
		rs, err := s.storage.Recent(ctx, count)
		if err != nil {
			return nil, err
		}
		return readingsResult{Readings: rs, Count: len(rs), Source: "database"}, nil
	}

	rs := s.loop.RecentReadings()
	if len(rs) > count {
		rs = rs[:count]
	}
	return readingsResult{Readings: rs, Count: len(rs), Source: "cache"}, nil
}

func (s *Server) handleOutcomes(args json.RawMessage) (interface{}, error) {
	count, err := parseCountArgs(args)
	if err != nil {
		return nil, err
	}
	out := s.loop.Outcomes(count)
	return map[string]interface{}{"outcomes": out, "count": len(out)}, nil
}

// === Inspection Handlers ===

type readingExtractArgs struct {
	Text   string `json:"text"`
	Policy string `json:"policy"`
}

func (s *Server) handleReadingExtract(args json.RawMessage) (interface{}, error) {
	var a readingExtractArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	switch a.Policy {
	case "", "general":
		return reading.ExtractGeneral(a.Text), nil
	case "sampling":
		return reading.ExtractSampling(a.Text), nil
	default:
		return nil, fmt.Errorf("unknown policy %q (want general or sampling)", a.Policy)
	}
}

// regionCrop takes the latest frame and crops the selected region, clamped
// to the frame.
func (s *Server) regionCrop() (*imaging.Buffer, imaging.Region, error) {
	frame := s.frames.CurrentFrame()
	if frame.Empty() {
		return nil, imaging.Region{}, errNoFrame
	}
	region := s.selection.CurrentRegion().Clamp(frame.Width(), frame.Height())
	crop, err := imaging.Crop(frame, region)
	if err != nil {
		return nil, region, err
	}
	return crop, region, nil
}

type regionPreviewArgs struct {
	Scale float64 `json:"scale"`
}

type regionPreviewResult struct {
	*imaging.EncodedImage
	Region         imaging.Region      `json:"region"`
	Params         preprocess.Params   `json:"params"`
	RawStats       imaging.RegionStats `json:"raw_stats"`
	ProcessedStats imaging.RegionStats `json:"processed_stats"`
}

func (s *Server) handleRegionPreview(args json.RawMessage) (interface{}, error) {
	a := regionPreviewArgs{Scale: 1.0}
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	crop, region, err := s.regionCrop()
	if err != nil {
		return nil, err
	}
	params := s.loop.Params()
	processed, err := preprocess.Process(crop, params)
	if err != nil {
		return nil, err
	}
	encoded, err := imaging.Scale(processed, a.Scale).EncodeBase64()
	if err != nil {
		return nil, err
	}
	return regionPreviewResult{
		EncodedImage:   encoded,
		Region:         region,
		Params:         params,
		RawStats:       imaging.Stats(crop),
		ProcessedStats: imaging.Stats(processed),
	}, nil
}

// wordRecognizer is implemented by engines that report word boxes.
type wordRecognizer interface {
	RecognizeWords(ctx context.Context, img *imaging.Buffer, language string) (*ocr.Result, error)
}

type regionOCRResult struct {
	Engine   string            `json:"engine"`
	Language string            `json:"language"`
	Region   imaging.Region    `json:"region"`
	Text     string            `json:"text"`
	General  reading.Candidate `json:"general"`
	Sampling reading.Candidate `json:"sampling"`
	Words    []ocr.TextRegion  `json:"words,omitempty"`
}

func (s *Server) handleRegionOCR(ctx context.Context) (interface{}, error) {
	crop, region, err := s.regionCrop()
	if err != nil {
		return nil, err
	}
	processed, err := preprocess.Process(crop, s.loop.Params())
	if err != nil {
		return nil, err
	}

	result := regionOCRResult{
		Engine:   s.engine.Name(),
		Language: s.loop.Language(),
		Region:   region,
	}
	if wr, ok := s.engine.(wordRecognizer); ok {
		words, err := wr.RecognizeWords(ctx, processed, result.Language)
		if err != nil {
			return nil, err
		}
		words.Offset(region.X, region.Y)
		result.Text = words.FullText
		result.Words = words.Regions
	} else {
		result.Text, err = s.engine.Recognize(ctx, processed, result.Language)
		if err != nil {
			return nil, err
		}
	}
	result.General = reading.ExtractGeneral(result.Text)
	result.Sampling = reading.ExtractSampling(result.Text)
	return result, nil
}

type framePreviewArgs struct {
	GridSpacing     *int    `json:"grid_spacing"`
	ShowCoordinates bool    `json:"show_coordinates"`
	GridColor       string  `json:"grid_color"`
	Scale           float64 `json:"scale"`
}

type framePreviewResult struct {
	*imaging.EncodedImage
	FrameWidth  int            `json:"frame_width"`
	FrameHeight int            `json:"frame_height"`
	Region      imaging.Region `json:"region"`
}

func (s *Server) handleFramePreview(args json.RawMessage) (interface{}, error) {
	a := framePreviewArgs{GridColor: defaultGridColor, Scale: 1.0}
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	spacing := defaultGridSpacing
	if a.GridSpacing != nil {
		spacing = *a.GridSpacing
	}
	gridColor, err := imaging.ParseHexColor(a.GridColor)
	if err != nil {
		return nil, err
	}

	frame := s.frames.CurrentFrame()
	if frame.Empty() {
		return nil, errNoFrame
	}
	region := s.selection.CurrentRegion()
	annotated, err := imaging.Annotate(frame, region, imaging.AnnotateOptions{
		GridSpacing:     spacing,
		ShowCoordinates: a.ShowCoordinates,
		GridColor:       gridColor,
	})
	if err != nil {
		return nil, err
	}
	encoded, err := imaging.Scale(annotated, a.Scale).EncodeBase64()
	if err != nil {
		return nil, err
	}
	return framePreviewResult{
		EncodedImage: encoded,
		FrameWidth:   frame.Width(),
		FrameHeight:  frame.Height(),
		Region:       region,
	}, nil
}

func (s *Server) handleOCRInfo(ctx context.Context) ocr.Info {
	switch e := s.engine.(type) {
	case interface{ Info() ocr.Info }:
		return e.Info()
	case interface {
		Info(context.Context) ocr.Info
	}:
		return e.Info(ctx)
	default:
		return ocr.Info{Engine: s.engine.Name(), Available: true}
	}
}

// === Storage Handlers ===

type storageResult struct {
	Path      string `json:"path"`
	Connected bool   `json:"connected"`
	Message   string `json:"message,omitempty"`
	Readings  *int   `json:"readings,omitempty"`
}

func (s *Server) handleStorageConnect(ctx context.Context) (interface{}, error) {
	if s.storage == nil {
		return nil, errNoStorage
	}
	if err := s.storage.Connect(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", sink.ErrSinkUnavailable, err)
	}
	s.log.WithField("path", s.storage.Path()).Info("Database connected")
	if err := s.loop.RefreshRecent(ctx); err != nil {
		s.log.WithError(err).Warn("Could not refresh recent readings")
	}
	return storageResult{Path: s.storage.Path(), Connected: true}, nil
}

func (s *Server) handleStorageDisconnect() (interface{}, error) {
	if s.storage == nil {
		return nil, errNoStorage
	}
	if err := s.storage.Disconnect(); err != nil {
		return nil, err
	}
	s.log.WithField("path", s.storage.Path()).Info("Database disconnected")
	return storageResult{Path: s.storage.Path(), Connected: false}, nil
}

func (s *Server) handleStorageTest(ctx context.Context) (interface{}, error) {
	if s.storage == nil {
		return nil, errNoStorage
	}
	msg, err := s.storage.TestConnection(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", sink.ErrSinkUnavailable, err)
	}
	result := storageResult{
		Path:      s.storage.Path(),
		Connected: s.storage.IsConnected(),
		Message:   msg,
	}
	if result.Connected {
		n, err := s.storage.Count(ctx)
		if err != nil {
			return nil, err
		}
		result.Readings = &n
	}
	return result, nil
}
