package manifest

import (
	"fmt"
	"strings"
	"time"

	"github.com/vk/piecekit"
)

// Validate performs a strict parity check between a manifest and a
// constructed piece tree. Every command, listener, and loop the manifest
// declares must exist in the tree, and everything the tree registers must be
// declared in the manifest; piece names and child order must match exactly.
// All mismatches are reported together.
func Validate(doc *Document, root *piecekit.Piece) error {
	var errs []string
	validatePiece(doc.Piece, root, &errs)
	if len(errs) > 0 {
		return fmt.Errorf("manifest validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

func validatePiece(block *PieceBlock, p *piecekit.Piece, errs *[]string) {
	if block.Name != p.Name() {
		*errs = append(*errs, fmt.Sprintf("piece name mismatch: manifest declares %q, tree has %q", block.Name, p.Name()))
	}

	validateItems(block, p, piecekit.KindCommand, errs)
	validateItems(block, p, piecekit.KindListener, errs)
	validateLoops(block, p, errs)

	children := p.Children()
	if len(block.Children) != len(children) {
		*errs = append(*errs, fmt.Sprintf("piece %q: manifest declares %d child piece(s), tree has %d",
			block.Name, len(block.Children), len(children)))
		return
	}
	for i := range children {
		validatePiece(&block.Children[i], children[i], errs)
	}
}

func validateItems(block *PieceBlock, p *piecekit.Piece, kind piecekit.Kind, errs *[]string) {
	declared := make(map[string]struct{})
	blocks := block.Commands
	if kind == piecekit.KindListener {
		blocks = block.Listeners
	}
	for _, item := range blocks {
		declared[item.Name] = struct{}{}
	}

	registered := make(map[string]struct{})
	for _, item := range p.Items() {
		if item.Kind() == kind {
			registered[item.Identity()] = struct{}{}
		}
	}

	for name := range registered {
		if _, ok := declared[name]; !ok {
			*errs = append(*errs, fmt.Sprintf("piece %q: tree registers %s %q which is not declared in manifest",
				block.Name, kind, name))
		}
	}
	for name := range declared {
		if _, ok := registered[name]; !ok {
			*errs = append(*errs, fmt.Sprintf("piece %q: manifest declares %s %q which is not registered in tree",
				block.Name, kind, name))
		}
	}
}

func validateLoops(block *PieceBlock, p *piecekit.Piece, errs *[]string) {
	loops := p.Loops()
	byName := make(map[string]*piecekit.Loop, len(loops))
	for _, loop := range loops {
		byName[loop.Name()] = loop
	}

	declared := make(map[string]struct{}, len(block.Loops))
	for _, lb := range block.Loops {
		declared[lb.Name] = struct{}{}
		loop, ok := byName[lb.Name]
		if !ok {
			*errs = append(*errs, fmt.Sprintf("piece %q: manifest declares loop %q which is not registered in tree",
				block.Name, lb.Name))
			continue
		}
		every, err := time.ParseDuration(lb.Every)
		if err != nil {
			*errs = append(*errs, fmt.Sprintf("piece %q: loop %q has invalid interval %q: %v",
				block.Name, lb.Name, lb.Every, err))
			continue
		}
		if every != loop.Interval() {
			*errs = append(*errs, fmt.Sprintf("piece %q: loop %q interval mismatch: manifest declares %s, tree has %s",
				block.Name, lb.Name, every, loop.Interval()))
		}
	}

	for _, loop := range loops {
		if _, ok := declared[loop.Name()]; !ok {
			*errs = append(*errs, fmt.Sprintf("piece %q: tree registers loop %q which is not declared in manifest",
				block.Name, loop.Name()))
		}
	}
}

// ApplyExtras copies each piece block's extras defaults into the matching
// piece's store, without overriding keys the code already set. The manifest
// seeds defaults; Go code wins on conflict. Tree shape mismatches are left
// for Validate to report.
func ApplyExtras(doc *Document, root *piecekit.Piece) error {
	return applyExtras(doc.Piece, root)
}

func applyExtras(block *PieceBlock, p *piecekit.Piece) error {
	extras, err := block.ExtrasMap()
	if err != nil {
		return err
	}
	for key, value := range extras {
		if _, exists := p.GetExtra(key); !exists {
			p.SetExtra(key, value)
		}
	}
	children := p.Children()
	for i := range block.Children {
		if i >= len(children) {
			break
		}
		if err := applyExtras(&block.Children[i], children[i]); err != nil {
			return err
		}
	}
	return nil
}
