package flow

import (
	"encoding/json"
	"fmt"
)

// Command is an edit applied to a flow document. Components that want to
// change the body (the variable sidebar, toolbar buttons, the API) send
// commands to the editor instead of touching the document directly.
type Command interface {
	apply(*Document) (bool, error)
}

type InsertVariable struct {
	Block  int    `json:"block"`
	Offset int    `json:"offset"`
	Path   string `json:"path"`
}

func (c InsertVariable) apply(d *Document) (bool, error) {
	if !ValidPath(c.Path) {
		return false, fmt.Errorf("invalid variable path %q", c.Path)
	}
	if err := d.InsertText(c.Block, c.Offset, Token(c.Path)); err != nil {
		return false, err
	}
	return true, nil
}

type Indent struct {
	Selection
}

func (c Indent) apply(d *Document) (bool, error) { return d.Indent(c.Selection) }

type Outdent struct {
	Selection
}

func (c Outdent) apply(d *Document) (bool, error) { return d.Outdent(c.Selection) }

type SetTextIndent struct {
	Selection
	Px *float64 `json:"px"`
}

func (c SetTextIndent) apply(d *Document) (bool, error) { return d.SetTextIndent(c.Selection, c.Px) }

// Dispatch is handed to command producers.
type Dispatch func(Command) (bool, error)

// Editor owns a document and notifies onChange after every mutating command.
type Editor struct {
	doc      *Document
	onChange func(*Document)
}

func NewEditor(doc *Document, onChange func(*Document)) *Editor {
	return &Editor{doc: doc, onChange: onChange}
}

func (e *Editor) Document() *Document { return e.doc }

func (e *Editor) Apply(cmd Command) (bool, error) {
	changed, err := cmd.apply(e.doc)
	if err != nil {
		return false, err
	}
	if changed && e.onChange != nil {
		e.onChange(e.doc)
	}
	return changed, nil
}

func (e *Editor) Dispatcher() Dispatch { return e.Apply }

// Sidebar lists insertable variables and emits InsertVariable commands at the
// current cursor through the dispatch callback it was built with.
type Sidebar struct {
	dispatch Dispatch
	block    int
	offset   int
}

func NewSidebar(dispatch Dispatch) *Sidebar {
	return &Sidebar{dispatch: dispatch}
}

// MoveCursor records where the next insertion lands.
func (s *Sidebar) MoveCursor(block, offset int) {
	s.block, s.offset = block, offset
}

func (s *Sidebar) Insert(path string) (bool, error) {
	changed, err := s.dispatch(InsertVariable{Block: s.block, Offset: s.offset, Path: path})
	if err == nil && changed {
		s.offset += len([]rune(Token(path)))
	}
	return changed, err
}

// RawCommand is the wire form: {"type": "indent", "from": 0, "to": 2}.
type RawCommand struct {
	Type   string   `json:"type"`
	From   int      `json:"from"`
	To     int      `json:"to"`
	Block  int      `json:"block"`
	Offset int      `json:"offset"`
	Path   string   `json:"path"`
	Px     *float64 `json:"px"`
}

func (r RawCommand) Command() (Command, error) {
	sel := Selection{From: r.From, To: r.To}
	switch r.Type {
	case "indent":
		return Indent{sel}, nil
	case "outdent":
		return Outdent{sel}, nil
	case "text_indent":
		return SetTextIndent{Selection: sel, Px: r.Px}, nil
	case "insert_variable":
		return InsertVariable{Block: r.Block, Offset: r.Offset, Path: r.Path}, nil
	}
	return nil, fmt.Errorf("unknown command type %q", r.Type)
}

// DecodeCommands parses a JSON array of wire commands.
func DecodeCommands(data []byte) ([]Command, error) {
	var raw []RawCommand
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode commands: %w", err)
	}
	cmds := make([]Command, 0, len(raw))
	for _, r := range raw {
		cmd, err := r.Command()
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)
	}
	return cmds, nil
}
