package options

import (
	"encoding/json"

	"github.com/knadh/koanf/v2"
	"github.com/tailscale/hujson"
)

// JSONC implements a koanf.Parser for JSON with comments and trailing commas,
// the dialect tsconfig.json files are written in.
type JSONC struct{}

var _ koanf.Parser = (*JSONC)(nil)

func JSONCParser() *JSONC {
	return &JSONC{}
}

func (p *JSONC) Unmarshal(b []byte) (map[string]interface{}, error) {
	std, err := hujson.Standardize(b)
	if err != nil {
		return nil, err
	}

	var out map[string]interface{}
	if err := json.Unmarshal(std, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *JSONC) Marshal(o map[string]interface{}) ([]byte, error) {
	return json.Marshal(o)
}
