package piecekit

import "fmt"

// Kind discriminates the registrable item variants the host runtime
// understands.
type Kind int

const (
	// KindCommand is an invokable command, addressed by its identity.
	KindCommand Kind = iota
	// KindListener is an event listener, addressed by the event name it
	// subscribes to.
	KindListener
)

// String returns the manifest-facing name of the kind.
func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindListener:
		return "listener"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// MetadataKeyPiece is the metadata key under which an item's owning piece is
// stamped at registration time. See OwnerPiece.
const MetadataKeyPiece = "piece"

// Item is an opaque handle for one unit the host runtime can register: a
// command or an event listener. The registry never inspects the handler;
// only the concrete Runtime adapter knows how to invoke it. Items are
// immutable once registered on a piece.
type Item struct {
	kind     Kind
	identity string
	handler  any
	metadata map[string]any
}

// NewItem creates an item of the given kind. The handler is opaque to
// piecekit and is only interpreted by the Runtime it is eventually
// registered with.
func NewItem(kind Kind, identity string, handler any) *Item {
	return &Item{
		kind:     kind,
		identity: identity,
		handler:  handler,
		metadata: make(map[string]any),
	}
}

// NewCommand is shorthand for NewItem(KindCommand, identity, handler).
func NewCommand(identity string, handler any) *Item {
	return NewItem(KindCommand, identity, handler)
}

// NewListener is shorthand for NewItem(KindListener, event, handler).
func NewListener(event string, handler any) *Item {
	return NewItem(KindListener, event, handler)
}

// WithMetadata sets a metadata entry and returns the item, allowing chained
// construction before the item is registered. Mutating metadata after
// registration is not supported.
func (it *Item) WithMetadata(key string, value any) *Item {
	it.metadata[key] = value
	return it
}

// Kind returns the item's kind.
func (it *Item) Kind() Kind { return it.kind }

// Identity returns the item's identity: the command name for commands, the
// event name for listeners.
func (it *Item) Identity() string { return it.identity }

// Handler returns the opaque handler reference.
func (it *Item) Handler() any { return it.handler }

// Metadata returns a value from the item's metadata.
func (it *Item) Metadata(key string) (any, bool) {
	v, ok := it.metadata[key]
	return v, ok
}

// key is the identity tuple used for duplicate detection.
func (it *Item) key() itemKey {
	return itemKey{kind: it.kind, identity: it.identity}
}

type itemKey struct {
	kind     Kind
	identity string
}

func (k itemKey) String() string {
	return fmt.Sprintf("%s %q", k.kind, k.identity)
}

// OwnerPiece returns the piece an item was registered on. Registration
// stamps the owner into the item's metadata under MetadataKeyPiece.
func OwnerPiece(it *Item) (*Piece, error) {
	if v, ok := it.metadata[MetadataKeyPiece]; ok {
		if p, ok := v.(*Piece); ok {
			return p, nil
		}
	}
	return nil, fmt.Errorf("item %s does not belong to a piece", it.key())
}
