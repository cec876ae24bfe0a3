package btreestore

import (
	"CipherDB/internal/domain"
	"bytes"
	"encoding/binary"
	"hash/crc64"
	"io"
	"os"
	"sort"
	"sync"
)

// Write-ahead log. Committed page images are sealed with the database's
// page codec, appended here and fsynced before a commit returns; the base
// file is only caught up at checkpoint. An in-memory index of committed
// frames serves read-through lookups, with a monotonically increasing
// sequence number per frame so readers can pin a consistent watermark
// (snapshot isolation).

const walMagic = "CDBWAL01"

const (
	framePage   byte = 1
	frameCommit byte = 2

	// maxFrameData bounds a frame's payload: a page image plus the
	// largest codec overhead (AES-GCM nonce and tag).
	maxFrameData = PageSize + nonceSize + tagSize
)

// frameVersion is one committed image of a page, tagged with the global
// frame sequence at which it became visible.
type frameVersion struct {
	seq  uint64
	data []byte
}

type wal struct {
	mu       sync.RWMutex
	fd       *os.File  // nil for in-memory stores
	codec    pageCodec // seals frames on disk; the index holds plaintext
	path     string
	readOnly bool
	seq      uint64
	versions map[uint64][]frameVersion

	readers    map[uint64]uint64 // reader id -> pinned watermark
	nextReader uint64
}

func newMemoryWAL() *wal {
	return &wal{
		versions: make(map[uint64][]frameVersion),
		readers:  make(map[uint64]uint64),
	}
}

// openWAL opens or creates the log at path and recovers committed frames
// from it: the file is scanned from the start, committed transactions are
// published to the index and a trailing transaction without a commit frame
// is discarded. The codec must be the database's page codec so sealed
// frames can be opened during recovery.
func openWAL(path string, codec pageCodec, readOnly bool) (*wal, error) {
	w := &wal{
		codec:    codec,
		path:     path,
		readOnly: readOnly,
		versions: make(map[uint64][]frameVersion),
		readers:  make(map[uint64]uint64),
	}
	mode := os.O_CREATE | os.O_RDWR
	if readOnly {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return w, nil // read-only with no log: nothing to recover
		}
		mode = os.O_RDONLY
	}
	fd, err := os.OpenFile(path, mode, 0644)
	if err != nil {
		return nil, domain.WrapIO("open wal", err)
	}
	w.fd = fd
	if err := w.recover(); err != nil {
		fd.Close()
		return nil, err
	}
	return w, nil
}

func (w *wal) recover() error {
	info, err := w.fd.Stat()
	if err != nil {
		return domain.WrapIO("stat wal", err)
	}
	if info.Size() == 0 {
		if !w.readOnly {
			if _, err := w.fd.WriteAt([]byte(walMagic), 0); err != nil {
				return wrapWrite("write wal magic", err)
			}
		}
		return nil
	}
	buf := make([]byte, info.Size())
	if _, err := io.ReadFull(io.NewSectionReader(w.fd, 0, info.Size()), buf); err != nil {
		return domain.WrapIO("read wal", err)
	}
	if len(buf) < len(walMagic) || string(buf[:len(walMagic)]) != walMagic {
		return &domain.CorruptPageError{PageID: 0, Detail: "bad wal magic"}
	}
	r := bytes.NewReader(buf[len(walMagic):])

	// Frames of the transaction currently being scanned. They are only
	// published once its commit frame shows up intact.
	staged := make(map[uint64][]byte)
	var stagedTx uint64
	for {
		frameType, txID, pageID, data, err := readFrame(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			// A torn tail is the expected crash artifact: everything
			// before it was committed, everything after is discarded.
			break
		}
		if txID != stagedTx {
			staged = make(map[uint64][]byte)
			stagedTx = txID
		}
		switch frameType {
		case framePage:
			// The frame passed its checksum, so a failure to open it is
			// tampering or corruption, not a torn tail.
			plain, err := w.codec.openFrame(txID, pageID, data)
			if err != nil {
				return err
			}
			staged[pageID] = plain
		case frameCommit:
			w.publish(staged)
			staged = make(map[uint64][]byte)
		}
	}
	return nil
}

// publish makes a committed transaction's frames visible to new readers.
func (w *wal) publish(pages map[uint64][]byte) {
	ids := make([]uint64, 0, len(pages))
	for id := range pages {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		w.seq++
		w.versions[id] = append(w.versions[id], frameVersion{seq: w.seq, data: pages[id]})
	}
}

// appendTx durably stages one transaction: every dirty page image plus a
// commit frame, fsynced before the frames become visible. pages must
// include the header image under page id 0. Images are sealed with the
// page codec before they touch the disk, so an encrypted database never
// leaks plaintext through its log.
func (w *wal) appendTx(txID uint64, pages map[uint64][]byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.fd != nil {
		var buf bytes.Buffer
		ids := make([]uint64, 0, len(pages))
		for id := range pages {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			sealed, err := w.codec.sealFrame(txID, id, pages[id])
			if err != nil {
				return err
			}
			writeFrame(&buf, framePage, txID, id, sealed)
		}
		writeFrame(&buf, frameCommit, txID, 0, nil)

		if _, err := w.fd.Seek(0, io.SeekEnd); err != nil {
			return domain.WrapIO("seek wal", err)
		}
		if _, err := w.fd.Write(buf.Bytes()); err != nil {
			return wrapWrite("append wal", err)
		}
		// The durability barrier: the commit frame is on stable storage
		// before the write call returns.
		if err := w.fd.Sync(); err != nil {
			return domain.WrapIO("sync wal", err)
		}
	}
	w.publish(pages)
	return nil
}

// watermark is the sequence a reader pins at open: frames published later
// stay invisible to it.
func (w *wal) watermark() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.seq
}

// lookup returns the newest committed image of pageID visible at the
// given watermark.
func (w *wal) lookup(pageID, watermark uint64) ([]byte, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	versions := w.versions[pageID]
	for i := len(versions) - 1; i >= 0; i-- {
		if versions[i].seq <= watermark {
			return versions[i].data, true
		}
	}
	return nil, false
}

// registerReader pins the current watermark for a reader epoch.
func (w *wal) registerReader() (uint64, uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextReader++
	id := w.nextReader
	w.readers[id] = w.seq
	return id, w.seq
}

func (w *wal) releaseReader(id uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.readers, id)
}

func (w *wal) activeReaders() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.readers)
}

func (w *wal) size() int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.fd == nil {
		var n int64
		for _, versions := range w.versions {
			for _, v := range versions {
				n += int64(len(v.data))
			}
		}
		return n
	}
	info, err := w.fd.Stat()
	if err != nil {
		return 0
	}
	return info.Size()
}

// checkpoint replays every committed frame into the pager, syncs it and
// truncates the log. The caller must guarantee no reader epoch still
// depends on pre-checkpoint frames.
func (w *wal) checkpoint(p *pager) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.readOnly {
		return nil
	}
	if len(w.readers) > 0 {
		return nil // yield to active reader epochs, retry later
	}
	if len(w.versions) == 0 {
		return nil
	}
	var hdr header
	haveHdr := false
	for pageID, versions := range w.versions {
		latest := versions[len(versions)-1].data
		if pageID == 0 {
			h, err := decodeHeader(latest)
			if err != nil {
				return err
			}
			hdr, haveHdr = h, true
			continue
		}
		if err := p.writePage(pageID, latest); err != nil {
			return err
		}
	}
	if haveHdr {
		if err := p.writeHeader(hdr); err != nil {
			return err
		}
	}
	if err := p.sync(); err != nil {
		return err
	}
	if haveHdr {
		// Slots past the committed page count are garbage from rolled-back
		// growth; give the space back.
		if err := p.truncate(hdr.pageCount); err != nil {
			return err
		}
	}
	if w.fd != nil {
		if err := w.fd.Truncate(int64(len(walMagic))); err != nil {
			return domain.WrapIO("truncate wal", err)
		}
		if err := w.fd.Sync(); err != nil {
			return domain.WrapIO("sync wal", err)
		}
	}
	w.versions = make(map[uint64][]frameVersion)
	return nil
}

func (w *wal) close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fd != nil {
		err := w.fd.Close()
		w.fd = nil
		return err
	}
	return nil
}

// Frame layout: type(1) txid(8) pageid(8) len(4) data crc64(8).
// The checksum covers everything before it, so a torn append is detected.
func writeFrame(buf *bytes.Buffer, frameType byte, txID, pageID uint64, data []byte) {
	start := buf.Len()
	buf.WriteByte(frameType)
	var scratch [8]byte
	binary.LittleEndian.PutUint64(scratch[:], txID)
	buf.Write(scratch[:])
	binary.LittleEndian.PutUint64(scratch[:], pageID)
	buf.Write(scratch[:])
	binary.LittleEndian.PutUint32(scratch[:4], uint32(len(data)))
	buf.Write(scratch[:4])
	buf.Write(data)
	crc := crc64.Checksum(buf.Bytes()[start:], crcTable)
	binary.LittleEndian.PutUint64(scratch[:], crc)
	buf.Write(scratch[:])
}

func readFrame(r *bytes.Reader) (frameType byte, txID, pageID uint64, data []byte, err error) {
	head := make([]byte, 1+8+8+4)
	if _, err = io.ReadFull(r, head); err != nil {
		if err != io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return
	}
	frameType = head[0]
	txID = binary.LittleEndian.Uint64(head[1:])
	pageID = binary.LittleEndian.Uint64(head[9:])
	length := binary.LittleEndian.Uint32(head[17:])
	if length > maxFrameData {
		err = io.ErrUnexpectedEOF
		return
	}
	data = make([]byte, length)
	if _, err = io.ReadFull(r, data); err != nil {
		err = io.ErrUnexpectedEOF
		return
	}
	var crcBuf [8]byte
	if _, err = io.ReadFull(r, crcBuf[:]); err != nil {
		err = io.ErrUnexpectedEOF
		return
	}
	h := crc64.New(crcTable)
	h.Write(head)
	h.Write(data)
	if h.Sum64() != binary.LittleEndian.Uint64(crcBuf[:]) {
		err = io.ErrUnexpectedEOF
		return
	}
	if frameType != framePage && frameType != frameCommit {
		err = io.ErrUnexpectedEOF
	}
	return
}
