package payload

import (
	"encoding/json"
	"fmt"
	"mime"

	models "github.com/Schera-ole/fleetagent/internal/model"
)

const (
	ContentTypeJSON = "application/json"
	ContentTypeCBOR = "application/cbor"
)

// Codec encodes payloads for the wire.
type Codec interface {
	ContentType() string
	Marshal(p models.Payload) ([]byte, error)
	Unmarshal(data []byte, p *models.Payload) error
}

type JSONCodec struct{}

func (JSONCodec) ContentType() string { return ContentTypeJSON }

func (JSONCodec) Marshal(p models.Payload) ([]byte, error) {
	if p.MetricSets == nil {
		p.MetricSets = []models.MetricSet{}
	}
	return json.Marshal(p)
}

func (JSONCodec) Unmarshal(data []byte, p *models.Payload) error {
	return json.Unmarshal(data, p)
}

// CBORCodec uses deterministic CBOR, so equal payloads encode to equal bytes.
type CBORCodec struct{}

func (CBORCodec) ContentType() string { return ContentTypeCBOR }

func (CBORCodec) Marshal(p models.Payload) ([]byte, error) {
	if p.MetricSets == nil {
		p.MetricSets = []models.MetricSet{}
	}
	return models.MarshalCBOR(p)
}

func (CBORCodec) Unmarshal(data []byte, p *models.Payload) error {
	return models.UnmarshalCBOR(data, p)
}

// CodecFor returns the codec registered under name ("json" or "cbor").
func CodecFor(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "cbor":
		return CBORCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown encoding %q", name)
	}
}

// CodecForContentType picks the codec matching a Content-Type header.
// An empty header means JSON.
func CodecForContentType(header string) (Codec, error) {
	if header == "" {
		return JSONCodec{}, nil
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return nil, fmt.Errorf("parse content type: %w", err)
	}
	switch mediaType {
	case ContentTypeJSON:
		return JSONCodec{}, nil
	case ContentTypeCBOR:
		return CBORCodec{}, nil
	default:
		return nil, fmt.Errorf("unsupported content type %q", mediaType)
	}
}
