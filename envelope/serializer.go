package envelope

import (
	"encoding/json"

	gojson "github.com/goccy/go-json"
)

// JSONSerializer encodes/decodes using the standard library's
// encoding/json. It is the default Serializer; stdlib is kept here
// deliberately since this is a one-line pass-through with no
// performance-sensitive hot loop of its own, see DESIGN.md.
type JSONSerializer struct{}

func (JSONSerializer) Encode(value interface{}) ([]byte, error) {
	return json.Marshal(value)
}

func (JSONSerializer) Decode(data []byte, out interface{}) error {
	return json.Unmarshal(data, out)
}

// FastJSONSerializer is a drop-in, higher-throughput Serializer backed by
// goccy/go-json, offered as a swappable alternate the way
// go.bryk.io/pkg/log offers multiple interchangeable backends (zero, zap,
// logrus, charm) behind the same Logger interface.
type FastJSONSerializer struct{}

func (FastJSONSerializer) Encode(value interface{}) ([]byte, error) {
	return gojson.Marshal(value)
}

func (FastJSONSerializer) Decode(data []byte, out interface{}) error {
	return gojson.Unmarshal(data, out)
}

// Default is the package-level default Serializer instance.
var Default Serializer = JSONSerializer{}
