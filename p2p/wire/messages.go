package wire

import (
	"fmt"
	"io"

	"github.com/vision-project/vision-node/internal/chaintypes"
)

// AnnounceBlock is the lightweight new-tip broadcast (spec.md §4.13).
type AnnounceBlock struct {
	Height uint64
	Hash   chaintypes.Hash
	Prev   chaintypes.Hash
}

func (m *AnnounceBlock) encode() []byte {
	e := &encoder{}
	e.u64(m.Height)
	e.hash(m.Hash)
	e.hash(m.Prev)
	return e.bytes()
}

func decodeAnnounceBlock(payload []byte) (*AnnounceBlock, error) {
	d := newDecoder(payload)
	m := &AnnounceBlock{}
	var err error
	if m.Height, err = d.u64(); err != nil {
		return nil, err
	}
	if m.Hash, err = d.hash(); err != nil {
		return nil, err
	}
	if m.Prev, err = d.hash(); err != nil {
		return nil, err
	}
	return m, d.finish()
}

// GetHeaders requests headers starting after the closest locator match
// (spec.md §4.12 step 1). Stop is nil when the peer should send up to Max
// headers with no explicit stopping point.
type GetHeaders struct {
	Locator []chaintypes.Hash
	Stop    *chaintypes.Hash
	Max     uint32
}

func (m *GetHeaders) encode() []byte {
	e := &encoder{}
	e.hashSlice(m.Locator)
	if m.Stop == nil {
		e.bool(false)
	} else {
		e.bool(true)
		e.hash(*m.Stop)
	}
	e.u32(m.Max)
	return e.bytes()
}

func decodeGetHeaders(payload []byte) (*GetHeaders, error) {
	d := newDecoder(payload)
	m := &GetHeaders{}
	var err error
	if m.Locator, err = d.hashSlice(); err != nil {
		return nil, err
	}
	present, err := d.boolean()
	if err != nil {
		return nil, err
	}
	if present {
		h, err := d.hash()
		if err != nil {
			return nil, err
		}
		m.Stop = &h
	}
	if m.Max, err = d.u32(); err != nil {
		return nil, err
	}
	return m, d.finish()
}

// LiteHeader is a header-only view of a block, used for headers-first sync
// (spec.md §4.12, §6). Target mirrors the original's
// `format!("{:016x}", difficulty)` convention: it is difficulty rendered as
// a fixed-width value rather than an independently derived field.
type LiteHeader struct {
	Hash       chaintypes.Hash
	Prev       chaintypes.Hash
	Height     uint64
	Time       uint64
	Target     uint64
	Merkle     chaintypes.Hash
	Difficulty uint64
	Nonce      uint64
	Miner      []byte
}

// LiteHeaderFromBlock extracts the sync-relevant fields of a full block.
// Miner rides along because it is part of the PoW pre-image (internal/
// chaintypes.Header.EncodePreImage): without it a receiver reconstructing
// the header from a headers-only response can't recompute the same digest
// the sender claims as Hash.
func LiteHeaderFromBlock(b *chaintypes.Block) LiteHeader {
	return LiteHeader{
		Hash:       b.ID,
		Prev:       b.Header.ParentHash,
		Height:     b.Header.Number,
		Time:       b.Header.Timestamp,
		Target:     b.Header.Difficulty,
		Merkle:     b.Header.TxRoot,
		Difficulty: b.Header.Difficulty,
		Nonce:      b.Header.Nonce,
		Miner:      b.Header.Miner,
	}
}

func (h *LiteHeader) encode(e *encoder) {
	e.hash(h.Hash)
	e.hash(h.Prev)
	e.u64(h.Height)
	e.u64(h.Time)
	e.u64(h.Target)
	e.hash(h.Merkle)
	e.u64(h.Difficulty)
	e.u64(h.Nonce)
	e.bytesField(h.Miner)
}

func decodeLiteHeader(d *decoder) (LiteHeader, error) {
	var h LiteHeader
	var err error
	if h.Hash, err = d.hash(); err != nil {
		return h, err
	}
	if h.Prev, err = d.hash(); err != nil {
		return h, err
	}
	if h.Height, err = d.u64(); err != nil {
		return h, err
	}
	if h.Time, err = d.u64(); err != nil {
		return h, err
	}
	if h.Target, err = d.u64(); err != nil {
		return h, err
	}
	if h.Merkle, err = d.hash(); err != nil {
		return h, err
	}
	if h.Difficulty, err = d.u64(); err != nil {
		return h, err
	}
	if h.Nonce, err = d.u64(); err != nil {
		return h, err
	}
	if h.Miner, err = d.bytesField(); err != nil {
		return h, err
	}
	return h, nil
}

// Headers responds to GetHeaders.
type Headers struct {
	Headers []LiteHeader
}

func (m *Headers) encode() []byte {
	e := &encoder{}
	e.u32(uint32(len(m.Headers)))
	for i := range m.Headers {
		m.Headers[i].encode(e)
	}
	return e.bytes()
}

func decodeHeaders(payload []byte) (*Headers, error) {
	d := newDecoder(payload)
	n, err := d.u32()
	if err != nil {
		return nil, err
	}
	if n > maxSliceLen {
		return nil, errTooLarge
	}
	m := &Headers{}
	if n > 0 {
		m.Headers = make([]LiteHeader, n)
	}
	for i := range m.Headers {
		if m.Headers[i], err = decodeLiteHeader(d); err != nil {
			return nil, err
		}
	}
	return m, d.finish()
}

// GetBlocks requests full block bodies by hash (spec.md §4.12 step 3).
type GetBlocks struct {
	Hashes []chaintypes.Hash
}

func (m *GetBlocks) encode() []byte {
	e := &encoder{}
	e.hashSlice(m.Hashes)
	return e.bytes()
}

func decodeGetBlocks(payload []byte) (*GetBlocks, error) {
	d := newDecoder(payload)
	m := &GetBlocks{}
	var err error
	if m.Hashes, err = d.hashSlice(); err != nil {
		return nil, err
	}
	return m, d.finish()
}

// BlockEnvelope carries one full block as opaque raw bytes; the caller
// (p2p/sync) owns encoding/decoding the raw block with its own RLP codec
// (EncodeBlock/DecodeBlock).
type BlockEnvelope struct {
	Hash chaintypes.Hash
	Raw  []byte
}

// Blocks responds to GetBlocks. It is a compressedKind, since block bodies
// are the largest payloads on the wire.
type Blocks struct {
	Blocks []BlockEnvelope
}

func (m *Blocks) encode() []byte {
	e := &encoder{}
	e.u32(uint32(len(m.Blocks)))
	for _, b := range m.Blocks {
		e.hash(b.Hash)
		e.bytesField(b.Raw)
	}
	return e.bytes()
}

func decodeBlocks(payload []byte) (*Blocks, error) {
	d := newDecoder(payload)
	n, err := d.u32()
	if err != nil {
		return nil, err
	}
	if n > maxSliceLen {
		return nil, errTooLarge
	}
	m := &Blocks{}
	if n > 0 {
		m.Blocks = make([]BlockEnvelope, n)
	}
	for i := range m.Blocks {
		if m.Blocks[i].Hash, err = d.hash(); err != nil {
			return nil, err
		}
		if m.Blocks[i].Raw, err = d.bytesField(); err != nil {
			return nil, err
		}
	}
	return m, d.finish()
}

// InvTx announces transaction ids a peer has seen, without sending the
// transactions themselves (spec.md §4.13).
type InvTx struct {
	TxIDs []chaintypes.Hash
}

func (m *InvTx) encode() []byte {
	e := &encoder{}
	e.hashSlice(m.TxIDs)
	return e.bytes()
}

func decodeInvTx(payload []byte) (*InvTx, error) {
	d := newDecoder(payload)
	m := &InvTx{}
	var err error
	if m.TxIDs, err = d.hashSlice(); err != nil {
		return nil, err
	}
	return m, d.finish()
}

// GetData requests the full transactions named by a prior InvTx.
type GetData struct {
	TxIDs []chaintypes.Hash
}

func (m *GetData) encode() []byte {
	e := &encoder{}
	e.hashSlice(m.TxIDs)
	return e.bytes()
}

func decodeGetData(payload []byte) (*GetData, error) {
	d := newDecoder(payload)
	m := &GetData{}
	var err error
	if m.TxIDs, err = d.hashSlice(); err != nil {
		return nil, err
	}
	return m, d.finish()
}

// Tx carries one raw encoded transaction, as requested by GetData.
type Tx struct {
	Raw []byte
}

func (m *Tx) encode() []byte {
	e := &encoder{}
	e.bytesField(m.Raw)
	return e.bytes()
}

func decodeTx(payload []byte) (*Tx, error) {
	d := newDecoder(payload)
	m := &Tx{}
	var err error
	if m.Raw, err = d.bytesField(); err != nil {
		return nil, err
	}
	return m, d.finish()
}

// Encode returns the frame payload bytes for msg, tagged with its Kind so
// WriteMessage can pick the right frame kind.
func Encode(msg any) (Kind, []byte, error) {
	switch m := msg.(type) {
	case *Handshake:
		return KindHandshake, m.encode(), nil
	case *AnnounceBlock:
		return KindAnnounceBlock, m.encode(), nil
	case *GetHeaders:
		return KindGetHeaders, m.encode(), nil
	case *Headers:
		return KindHeaders, m.encode(), nil
	case *GetBlocks:
		return KindGetBlocks, m.encode(), nil
	case *Blocks:
		return KindBlocks, m.encode(), nil
	case *InvTx:
		return KindInvTx, m.encode(), nil
	case *GetData:
		return KindGetData, m.encode(), nil
	case *Tx:
		return KindTx, m.encode(), nil
	default:
		return 0, nil, fmt.Errorf("wire: unknown message type %T", msg)
	}
}

// Decode parses a frame's payload according to kind, returning one of the
// message types above as `any`.
func Decode(kind Kind, payload []byte) (any, error) {
	switch kind {
	case KindHandshake:
		return decodeHandshake(payload)
	case KindAnnounceBlock:
		return decodeAnnounceBlock(payload)
	case KindGetHeaders:
		return decodeGetHeaders(payload)
	case KindHeaders:
		return decodeHeaders(payload)
	case KindGetBlocks:
		return decodeGetBlocks(payload)
	case KindBlocks:
		return decodeBlocks(payload)
	case KindInvTx:
		return decodeInvTx(payload)
	case KindGetData:
		return decodeGetData(payload)
	case KindTx:
		return decodeTx(payload)
	default:
		return nil, fmt.Errorf("wire: unknown frame kind %d", kind)
	}
}

// WriteMessage encodes msg and writes it as a frame to w.
func WriteMessage(w io.Writer, msg any) error {
	kind, payload, err := Encode(msg)
	if err != nil {
		return err
	}
	return WriteFrame(w, kind, payload)
}

// ReadMessage reads one frame from r and decodes it.
func ReadMessage(r io.Reader) (any, error) {
	frame, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}
	return Decode(frame.Kind, frame.Payload)
}
