package art

import (
	"encoding/json"
	"sort"
	"strconv"

	"github.com/ironsheep/artgrid/internal/errors"
	"github.com/ironsheep/artgrid/internal/iiif"
	"github.com/ironsheep/artgrid/internal/resource"
)

// Flat is the current serialized shape of an item. Thumbnail keys are widths
// in decimal.
type Flat struct {
	ID         string            `json:"id,omitempty"`
	Source     string            `json:"source"`
	Thumbnails map[string]string `json:"thumbnails,omitempty"`
	Metadata   Metadata          `json:"metadata,omitempty"`
}

// Legacy is the older serialized shape. Its tiles field referred to a tile
// set format that is no longer produced and is dropped on read.
type Legacy struct {
	Orig       string            `json:"orig"`
	Tiles      json.RawMessage   `json:"tiles,omitempty"`
	Thumbnails map[string]string `json:"thumbnails,omitempty"`
	Creator    string            `json:"creator,omitempty"`
	Title      string            `json:"title,omitempty"`
	Details    string            `json:"details,omitempty"`
	Date       string            `json:"date,omitempty"`
	Location   string            `json:"location,omitempty"`
}

// Flat converts the legacy shape to the current one.
func (l Legacy) Flat() Flat {
	var meta Metadata
	for _, f := range []Field{
		{Key: KeyCreator, Value: l.Creator},
		{Key: KeyTitle, Value: l.Title},
		{Key: KeyDetails, Value: l.Details},
		{Key: KeyDate, Value: l.Date},
		{Key: KeyLocation, Value: l.Location},
	} {
		if f.Value != "" {
			meta.Set(f.Key, f.Value)
		}
	}
	return Flat{Source: l.Orig, Thumbnails: l.Thumbnails, Metadata: meta}
}

// InputKind discriminates the accepted item input shapes.
type InputKind string

// Input kinds.
const (
	InputFlat     InputKind = "flat"
	InputLegacy   InputKind = "legacy"
	InputCanvas   InputKind = "canvas"
	InputManifest InputKind = "manifest"
)

// Input is one decoded item document. Exactly the payload matching Kind is
// set.
type Input struct {
	Kind     InputKind
	Flat     *Flat
	Legacy   *Legacy
	Canvas   *iiif.Canvas
	Manifest *iiif.Manifest
}

// DecodeInput classifies and decodes an item document once: an IIIF "type"
// of Canvas or Manifest selects the IIIF variants, an "orig" field selects
// the legacy shape, anything else is read as the current flat shape.
func DecodeInput(data []byte) (Input, error) {
	var head struct {
		Type string          `json:"type"`
		Orig json.RawMessage `json:"orig"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return Input{}, errors.Wrap(errors.CodeInput, err, "art item must be a JSON object")
	}

	switch {
	case head.Type == iiif.TypeCanvas:
		var c iiif.Canvas
		if err := json.Unmarshal(data, &c); err != nil {
			return Input{}, errors.Wrap(errors.CodeInput, err, "malformed canvas")
		}
		return Input{Kind: InputCanvas, Canvas: &c}, nil
	case head.Type == iiif.TypeManifest:
		var m iiif.Manifest
		if err := json.Unmarshal(data, &m); err != nil {
			return Input{}, errors.Wrap(errors.CodeInput, err, "malformed manifest")
		}
		return Input{Kind: InputManifest, Manifest: &m}, nil
	case head.Type != "":
		return Input{}, errors.Input("unsupported item type %q", head.Type)
	case head.Orig != nil:
		var l Legacy
		if err := json.Unmarshal(data, &l); err != nil {
			return Input{}, errors.Wrap(errors.CodeInput, err, "malformed legacy item")
		}
		return Input{Kind: InputLegacy, Legacy: &l}, nil
	default:
		var f Flat
		if err := json.Unmarshal(data, &f); err != nil {
			return Input{}, errors.Wrap(errors.CodeInput, err, "malformed item")
		}
		return Input{Kind: InputFlat, Flat: &f}, nil
	}
}

// DecodeInputs decodes a JSON array of item documents.
func DecodeInputs(data []byte) ([]Input, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, errors.Wrap(errors.CodeInput, err, "art items must be a JSON array")
	}
	out := make([]Input, 0, len(raws))
	for i, raw := range raws {
		in, err := DecodeInput(raw)
		if err != nil {
			return nil, errors.Wrap(errors.CodeInput, err, "item %d", i)
		}
		out = append(out, in)
	}
	return out, nil
}

// FromInput builds an item from any decoded input variant.
func FromInput(svc *resource.Services, in Input) (*Item, error) {
	switch in.Kind {
	case InputFlat:
		if in.Flat != nil {
			return FromFlat(svc, *in.Flat)
		}
	case InputLegacy:
		if in.Legacy != nil {
			return FromFlat(svc, in.Legacy.Flat())
		}
	case InputCanvas:
		if in.Canvas != nil {
			return FromCanvas(svc, *in.Canvas)
		}
	case InputManifest:
		if in.Manifest != nil {
			return FromManifest(svc, *in.Manifest)
		}
	}
	return nil, errors.Input("input of kind %q has no payload", in.Kind)
}

// FromFlat builds an item from the current flat shape.
func FromFlat(svc *resource.Services, f Flat) (*Item, error) {
	if f.Source == "" {
		return nil, errors.Input("art item requires a source")
	}
	it, err := FromLocation(svc, f.ID, f.Source, f.Metadata.Clone())
	if err != nil {
		return nil, err
	}
	for key, loc := range f.Thumbnails {
		width, err := strconv.Atoi(key)
		if err != nil {
			return nil, errors.Input("thumbnail key %q is not a width", key)
		}
		thumb, err := resource.FromLocation(svc, loc)
		if err != nil {
			return nil, err
		}
		if err := it.AddThumbnail(width, thumb); err != nil {
			return nil, err
		}
	}
	return it, nil
}

// ToFlat is the inverse of FromFlat. It fails with CodeSerialization while
// any image slot is still only in memory; call Persist first.
func (it *Item) ToFlat() (Flat, error) {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.source.InMemory() {
		return Flat{}, errors.New(errors.CodeSerialization, "source of %s is only in memory; persist it first", it.SourceName)
	}
	f := Flat{
		ID:       it.ID,
		Source:   it.source.ID(),
		Metadata: it.Metadata.Clone(),
	}

	widths := make([]int, 0, len(it.thumbnails))
	for w := range it.thumbnails {
		widths = append(widths, w)
	}
	sort.Ints(widths)
	for _, w := range widths {
		thumb := it.thumbnails[w]
		if thumb.InMemory() {
			return Flat{}, errors.New(errors.CodeSerialization, "thumbnail %d of %s is only in memory; persist it first", w, it.SourceName)
		}
		if f.Thumbnails == nil {
			f.Thumbnails = make(map[string]string, len(widths))
		}
		f.Thumbnails[strconv.Itoa(w)] = thumb.ID()
	}
	return f, nil
}
