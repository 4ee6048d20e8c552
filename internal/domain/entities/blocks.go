package entities

import (
	"encoding/json"
	"fmt"
)

// BlockType tags the payload carried by a Block.
type BlockType string

const (
	BlockText  BlockType = "text"
	BlockTable BlockType = "table"
	BlockImage BlockType = "image"
	BlockAlert BlockType = "alert"
)

// Valid reports whether t is one of the four block kinds.
func (t BlockType) Valid() bool {
	switch t {
	case BlockText, BlockTable, BlockImage, BlockAlert:
		return true
	}
	return false
}

// DebugInfo is attached to blocks at the orchestration boundary.
type DebugInfo struct {
	SessionID string         `json:"session_id,omitempty"`
	Intent    string         `json:"intent,omitempty"`
	TookMS    *int64         `json:"took_ms,omitempty"`
	Notes     map[string]any `json:"notes,omitempty"`
}

// Clone returns a deep-enough copy: the notes map is copied, its values are shared.
func (d *DebugInfo) Clone() *DebugInfo {
	if d == nil {
		return nil
	}
	c := *d
	if d.TookMS != nil {
		ms := *d.TookMS
		c.TookMS = &ms
	}
	if d.Notes != nil {
		c.Notes = make(map[string]any, len(d.Notes))
		for k, v := range d.Notes {
			c.Notes[k] = v
		}
	}
	return &c
}

// TablePayload is the payload of a table block.
type TablePayload struct {
	Headers   []string `json:"headers"`
	Rows      [][]any  `json:"rows"`
	Note      string   `json:"note,omitempty"`
	Truncated bool     `json:"truncated,omitempty"`
}

// Len returns the number of data rows.
func (p *TablePayload) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Rows)
}

// Block is the immutable response envelope returned by every user-facing operation.
// Text, image and alert blocks carry their payload in Text (the image payload is
// base64-encoded PNG); table blocks carry Table.
type Block struct {
	Type  BlockType
	Title string
	Text  string
	Table *TablePayload
	Debug *DebugInfo
}

// NewTextBlock creates a text block.
func NewTextBlock(text, title string) Block {
	return Block{Type: BlockText, Title: title, Text: text}
}

// NewTableBlock creates a table block.
func NewTableBlock(table TablePayload, title string) Block {
	if table.Headers == nil {
		table.Headers = []string{}
	}
	if table.Rows == nil {
		table.Rows = [][]any{}
	}
	return Block{Type: BlockTable, Title: title, Table: &table}
}

// NewImageBlock creates an image block from a base64-encoded image.
func NewImageBlock(imageBase64, title string) Block {
	return Block{Type: BlockImage, Title: title, Text: imageBase64}
}

// NewAlertBlock creates an alert block.
func NewAlertBlock(message, title string) Block {
	return Block{Type: BlockAlert, Title: title, Text: message}
}

// WithDebug returns a copy of b carrying d. The receiver is left untouched.
func (b Block) WithDebug(d *DebugInfo) Block {
	b.Debug = d
	return b
}

// MergeDebug returns a copy of b whose debug info has intent and took_ms set.
// Other fields of an existing DebugInfo are preserved; a block without debug
// info receives sessionID as well.
func (b Block) MergeDebug(sessionID, intent string, tookMS int64, notes map[string]any) Block {
	d := b.Debug.Clone()
	if d == nil {
		d = &DebugInfo{SessionID: sessionID}
	}
	d.Intent = intent
	d.TookMS = &tookMS
	if len(notes) > 0 {
		if d.Notes == nil {
			d.Notes = make(map[string]any, len(notes))
		}
		for k, v := range notes {
			d.Notes[k] = v
		}
	}
	b.Debug = d
	return b
}

type blockJSON struct {
	Type    BlockType       `json:"type"`
	Title   string          `json:"title,omitempty"`
	Payload json.RawMessage `json:"payload"`
	Debug   *DebugInfo      `json:"debug,omitempty"`
}

// MarshalJSON encodes the block as {type, title?, payload, debug?}.
func (b Block) MarshalJSON() ([]byte, error) {
	var payload any = b.Text
	if b.Type == BlockTable {
		table := b.Table
		if table == nil {
			table = &TablePayload{Headers: []string{}, Rows: [][]any{}}
		}
		payload = table
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", b.Type, err)
	}
	return json.Marshal(blockJSON{Type: b.Type, Title: b.Title, Payload: raw, Debug: b.Debug})
}

// UnmarshalJSON decodes the wire shape produced by MarshalJSON.
func (b *Block) UnmarshalJSON(data []byte) error {
	var wire blockJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if !wire.Type.Valid() {
		return fmt.Errorf("unknown block type %q", wire.Type)
	}
	out := Block{Type: wire.Type, Title: wire.Title, Debug: wire.Debug}
	if wire.Type == BlockTable {
		var table TablePayload
		if err := json.Unmarshal(wire.Payload, &table); err != nil {
			return fmt.Errorf("decoding table payload: %w", err)
		}
		out.Table = &table
	} else if err := json.Unmarshal(wire.Payload, &out.Text); err != nil {
		return fmt.Errorf("decoding %s payload: %w", wire.Type, err)
	}
	*b = out
	return nil
}
