package btreestore

import (
	"CipherDB/internal/domain"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc64"
	"os"
	"syscall"
)

// PageSize is the fixed unit of storage. Page 0 is the plaintext header;
// every later page is a fixed-size sealed slot.
const PageSize = 4096

const (
	headerMagic   = "CDBSTOR1"
	formatVersion = 1

	flagEncrypted uint32 = 1 << 0
)

const maxKeyCheckLen = 64

// header is the plaintext first page of the file.
//
// Layout (little-endian):
//
//	0    8   magic "CDBSTOR1"
//	8    4   format version
//	12   4   page size
//	16   4   flags (bit 0 = encrypted)
//	20   16  KDF salt
//	36   4   KDF rounds
//	40   8   page count (header included)
//	48   8   freelist head page id (0 = empty)
//	56   8   catalog root page id
//	64   8   user version
//	72   8   last committed transaction id
//	80   4   key check blob length
//	84   64  key check blob
//	...      zero padding
//	4088 8   CRC64 of bytes 0..4087
type header struct {
	flags       uint32
	salt        []byte
	kdfRounds   uint32
	pageCount   uint64
	freelist    uint64
	catalogRoot uint64
	userVersion int64
	lastTxID    uint64
	keyCheck    []byte
}

func (h header) encrypted() bool {
	return h.flags&flagEncrypted != 0
}

func (h header) encode() []byte {
	buf := make([]byte, PageSize)
	copy(buf[0:8], headerMagic)
	binary.LittleEndian.PutUint32(buf[8:], formatVersion)
	binary.LittleEndian.PutUint32(buf[12:], PageSize)
	binary.LittleEndian.PutUint32(buf[16:], h.flags)
	copy(buf[20:36], h.salt)
	binary.LittleEndian.PutUint32(buf[36:], h.kdfRounds)
	binary.LittleEndian.PutUint64(buf[40:], h.pageCount)
	binary.LittleEndian.PutUint64(buf[48:], h.freelist)
	binary.LittleEndian.PutUint64(buf[56:], h.catalogRoot)
	binary.LittleEndian.PutUint64(buf[64:], uint64(h.userVersion))
	binary.LittleEndian.PutUint64(buf[72:], h.lastTxID)
	binary.LittleEndian.PutUint32(buf[80:], uint32(len(h.keyCheck)))
	copy(buf[84:84+maxKeyCheckLen], h.keyCheck)
	crc := crc64.Checksum(buf[:PageSize-8], crcTable)
	binary.LittleEndian.PutUint64(buf[PageSize-8:], crc)
	return buf
}

func decodeHeader(buf []byte) (header, error) {
	var h header
	if len(buf) != PageSize {
		return h, &domain.CorruptPageError{PageID: 0, Detail: "short header"}
	}
	if string(buf[0:8]) != headerMagic {
		return h, &domain.CorruptPageError{PageID: 0, Detail: "bad magic"}
	}
	if crc := crc64.Checksum(buf[:PageSize-8], crcTable); crc != binary.LittleEndian.Uint64(buf[PageSize-8:]) {
		return h, &domain.CorruptPageError{PageID: 0, Detail: "header checksum mismatch"}
	}
	if v := binary.LittleEndian.Uint32(buf[8:]); v != formatVersion {
		return h, &domain.CorruptPageError{PageID: 0, Detail: fmt.Sprintf("unsupported format version %d", v)}
	}
	if ps := binary.LittleEndian.Uint32(buf[12:]); ps != PageSize {
		return h, &domain.CorruptPageError{PageID: 0, Detail: fmt.Sprintf("unsupported page size %d", ps)}
	}
	h.flags = binary.LittleEndian.Uint32(buf[16:])
	h.salt = append([]byte(nil), buf[20:36]...)
	h.kdfRounds = binary.LittleEndian.Uint32(buf[36:])
	h.pageCount = binary.LittleEndian.Uint64(buf[40:])
	h.freelist = binary.LittleEndian.Uint64(buf[48:])
	h.catalogRoot = binary.LittleEndian.Uint64(buf[56:])
	h.userVersion = int64(binary.LittleEndian.Uint64(buf[64:]))
	h.lastTxID = binary.LittleEndian.Uint64(buf[72:])
	checkLen := binary.LittleEndian.Uint32(buf[80:])
	if checkLen > maxKeyCheckLen {
		return h, &domain.CorruptPageError{PageID: 0, Detail: "oversized key check blob"}
	}
	h.keyCheck = append([]byte(nil), buf[84:84+checkLen]...)
	return h, nil
}

// pager owns the main database file: header plus fixed-size sealed page
// slots. Page contents pass through the codec on every read and write.
// Allocation bookkeeping (freelist, page count) lives in the header and is
// maintained by transactions, not here.
type pager struct {
	file     *os.File          // nil for in-memory stores
	mem      map[uint64][]byte // sealed slots when in-memory
	memHdr   []byte
	codec    pageCodec
	slotSize int
	readOnly bool
	path     string
}

func newFilePager(path string, codec pageCodec, readOnly bool) (*pager, error) {
	mode := os.O_RDWR
	if readOnly {
		mode = os.O_RDONLY
	}
	f, err := os.OpenFile(path, mode, 0644)
	if err != nil {
		return nil, domain.WrapIO("open database file", err)
	}
	return &pager{
		file:     f,
		codec:    codec,
		slotSize: PageSize + codec.overhead(),
		readOnly: readOnly,
		path:     path,
	}, nil
}

func newMemoryPager(codec pageCodec) *pager {
	return &pager{
		mem:      make(map[uint64][]byte),
		codec:    codec,
		slotSize: PageSize + codec.overhead(),
	}
}

// setCodec is used once during open, after the header told us whether the
// store is encrypted.
func (p *pager) setCodec(codec pageCodec) {
	p.codec = codec
	p.slotSize = PageSize + codec.overhead()
}

func (p *pager) slotOffset(id uint64) int64 {
	return PageSize + int64(id-1)*int64(p.slotSize)
}

func (p *pager) readHeader() (header, error) {
	if p.file == nil {
		if p.memHdr == nil {
			return header{}, &domain.CorruptPageError{PageID: 0, Detail: "missing header"}
		}
		return decodeHeader(p.memHdr)
	}
	buf := make([]byte, PageSize)
	if _, err := p.file.ReadAt(buf, 0); err != nil {
		return header{}, domain.WrapIO("read header", err)
	}
	return decodeHeader(buf)
}

func (p *pager) writeHeader(h header) error {
	if p.readOnly {
		return domain.ErrReadOnly
	}
	buf := h.encode()
	if p.file == nil {
		p.memHdr = buf
		return nil
	}
	if _, err := p.file.WriteAt(buf, 0); err != nil {
		return wrapWrite("write header", err)
	}
	return nil
}

// readPage decodes one page from the base file. Callers merging WAL state
// consult the log first.
func (p *pager) readPage(id uint64) ([]byte, error) {
	if id == 0 {
		return nil, &domain.CorruptPageError{PageID: 0, Detail: "page 0 is the header"}
	}
	if p.file == nil {
		slot, ok := p.mem[id]
		if !ok {
			return nil, &domain.CorruptPageError{PageID: id, Detail: "page not present"}
		}
		return p.codec.decode(id, slot)
	}
	buf := make([]byte, p.slotSize)
	if _, err := p.file.ReadAt(buf, p.slotOffset(id)); err != nil {
		return nil, domain.WrapIO("read page", err)
	}
	return p.codec.decode(id, buf)
}

// writePage seals a full page image into its slot.
func (p *pager) writePage(id uint64, data []byte) error {
	if p.readOnly {
		return domain.ErrReadOnly
	}
	if len(data) != PageSize {
		return fmt.Errorf("page image must be %d bytes, got %d", PageSize, len(data))
	}
	slot, err := p.codec.encode(id, data)
	if err != nil {
		return err
	}
	if p.file == nil {
		p.mem[id] = slot
		return nil
	}
	if _, err := p.file.WriteAt(slot, p.slotOffset(id)); err != nil {
		return wrapWrite("write page", err)
	}
	return nil
}

func (p *pager) sync() error {
	if p.file == nil {
		return nil
	}
	if err := p.file.Sync(); err != nil {
		return domain.WrapIO("sync database file", err)
	}
	return nil
}

// truncate drops page slots past the committed page count, reclaiming
// space left by aborted transactions that grew the file.
func (p *pager) truncate(pageCount uint64) error {
	if p.file == nil || p.readOnly {
		return nil
	}
	size := PageSize + int64(pageCount-1)*int64(p.slotSize)
	if pageCount == 0 {
		size = PageSize
	}
	if info, err := p.file.Stat(); err == nil && info.Size() > size {
		if err := p.file.Truncate(size); err != nil {
			return domain.WrapIO("truncate database file", err)
		}
	}
	return nil
}

func (p *pager) close() error {
	if p.file == nil {
		p.mem = nil
		p.memHdr = nil
		return nil
	}
	return p.file.Close()
}

// wrapWrite maps a full filesystem to StorageFull; anything else is a
// plain IO failure.
func wrapWrite(op string, err error) error {
	if errors.Is(err, syscall.ENOSPC) {
		return domain.ErrStorageFull
	}
	return domain.WrapIO(op, err)
}
