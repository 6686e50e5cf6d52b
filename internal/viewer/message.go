package viewer

import (
	"encoding/json"
	"fmt"

	"github.com/digitarald/Gecko-Profiler-Addon/internal/engine"
	"github.com/digitarald/Gecko-Profiler-Addon/internal/symbols"
)

// Message names.
const (
	MessageInit                = "Init"
	MessageGetSymbolTable      = "GetSymbolTable"
	MessageGetSymbolTableReply = "GetSymbolTableReply"
)

// Reply statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Message is the envelope exchanged with a viewer context.
type Message struct {
	Name string          `json:"name"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewMessage encodes data under name.
func NewMessage(name string, data any) (Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, fmt.Errorf("failed to encode %s: %w", name, err)
	}
	return Message{Name: name, Data: raw}, nil
}

// Decode unmarshals the payload into v.
func (m Message) Decode(v any) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("%s message has no data", m.Name)
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", m.Name, err)
	}
	return nil
}

// Init hands the captured profile to the viewer.
type Init struct {
	Profile *engine.Profile `json:"profile"`
	URL     string          `json:"url"`
}

// GetSymbolTable asks for the symbol table of one module.
type GetSymbolTable struct {
	PdbName    string `json:"pdbName"`
	BreakpadID string `json:"breakpadId"`
}

// GetSymbolTableReply answers a GetSymbolTable request. Result is set on
// success and Error on failure; the pair is echoed either way.
type GetSymbolTableReply struct {
	Status     string         `json:"status"`
	PdbName    string         `json:"pdbName"`
	BreakpadID string         `json:"breakpadId"`
	Result     *symbols.Table `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
}
