package btreestore

import (
	"CipherDB/internal/domain"
	"encoding/binary"
	"sort"
)

// B+tree keyed by int64 row id, one node per page. Leaves are chained for
// ascending scans. Payloads above maxInlinePayload spill into overflow
// chains. The root page id never changes: a root split converts the root
// page in place, so catalog entries stay valid forever.

const (
	nodeLeaf     byte = 1
	nodeInterior byte = 2

	maxInlinePayload = 1024
	overflowDataCap  = PageSize - 12
)

// pageAccess is how tree code touches pages. A write transaction provides
// the full contract; a read snapshot rejects mutation.
type pageAccess interface {
	read(id uint64) ([]byte, error)
	write(id uint64, data []byte) error
	allocate() (uint64, error)
	free(id uint64) error
}

type leafCell struct {
	key      int64
	overflow bool
	length   uint32
	head     uint64 // overflow chain head when overflow
	data     []byte // inline payload otherwise
}

type node struct {
	id       uint64
	leaf     bool
	next     uint64 // leaf chain
	cells    []leafCell
	keys     []int64  // interior separators
	children []uint64 // interior: len(keys)+1
}

// Node layout:
//
//	leaf:     1 type, 2 ncells, 8 next, cells…
//	cell:     8 key, 1 overflow flag, 4 length, then data or 8 chain head
//	interior: 1 type, 2 nkeys, 8 child0, then 8 key + 8 child per key
const nodeHeaderSize = 11

func (n *node) size() int {
	total := nodeHeaderSize
	if n.leaf {
		for _, c := range n.cells {
			total += 8 + 1 + 4
			if c.overflow {
				total += 8
			} else {
				total += len(c.data)
			}
		}
		return total
	}
	return total + len(n.keys)*16
}

func (n *node) encode() []byte {
	buf := make([]byte, PageSize)
	if n.leaf {
		buf[0] = nodeLeaf
		binary.LittleEndian.PutUint16(buf[1:], uint16(len(n.cells)))
		binary.LittleEndian.PutUint64(buf[3:], n.next)
		off := nodeHeaderSize
		for _, c := range n.cells {
			binary.LittleEndian.PutUint64(buf[off:], uint64(c.key))
			off += 8
			if c.overflow {
				buf[off] = 1
				off++
				binary.LittleEndian.PutUint32(buf[off:], c.length)
				off += 4
				binary.LittleEndian.PutUint64(buf[off:], c.head)
				off += 8
			} else {
				buf[off] = 0
				off++
				binary.LittleEndian.PutUint32(buf[off:], uint32(len(c.data)))
				off += 4
				copy(buf[off:], c.data)
				off += len(c.data)
			}
		}
		return buf
	}
	buf[0] = nodeInterior
	binary.LittleEndian.PutUint16(buf[1:], uint16(len(n.keys)))
	binary.LittleEndian.PutUint64(buf[3:], n.children[0])
	off := nodeHeaderSize
	for i, k := range n.keys {
		binary.LittleEndian.PutUint64(buf[off:], uint64(k))
		off += 8
		binary.LittleEndian.PutUint64(buf[off:], n.children[i+1])
		off += 8
	}
	return buf
}

func decodeNode(id uint64, buf []byte) (*node, error) {
	if len(buf) != PageSize {
		return nil, &domain.CorruptPageError{PageID: id, Detail: "short node page"}
	}
	n := &node{id: id}
	count := int(binary.LittleEndian.Uint16(buf[1:]))
	switch buf[0] {
	case nodeLeaf:
		n.leaf = true
		n.next = binary.LittleEndian.Uint64(buf[3:])
		off := nodeHeaderSize
		for i := 0; i < count; i++ {
			if off+13 > len(buf) {
				return nil, &domain.CorruptPageError{PageID: id, Detail: "truncated leaf cell"}
			}
			c := leafCell{key: int64(binary.LittleEndian.Uint64(buf[off:]))}
			off += 8
			c.overflow = buf[off] == 1
			off++
			c.length = binary.LittleEndian.Uint32(buf[off:])
			off += 4
			if c.overflow {
				if off+8 > len(buf) {
					return nil, &domain.CorruptPageError{PageID: id, Detail: "truncated overflow ref"}
				}
				c.head = binary.LittleEndian.Uint64(buf[off:])
				off += 8
			} else {
				if off+int(c.length) > len(buf) {
					return nil, &domain.CorruptPageError{PageID: id, Detail: "truncated inline payload"}
				}
				c.data = append([]byte(nil), buf[off:off+int(c.length)]...)
				off += int(c.length)
			}
			n.cells = append(n.cells, c)
		}
	case nodeInterior:
		n.children = append(n.children, binary.LittleEndian.Uint64(buf[3:]))
		off := nodeHeaderSize
		for i := 0; i < count; i++ {
			if off+16 > len(buf) {
				return nil, &domain.CorruptPageError{PageID: id, Detail: "truncated interior cell"}
			}
			n.keys = append(n.keys, int64(binary.LittleEndian.Uint64(buf[off:])))
			n.children = append(n.children, binary.LittleEndian.Uint64(buf[off+8:]))
			off += 16
		}
	default:
		return nil, &domain.CorruptPageError{PageID: id, Detail: "unknown node type"}
	}
	return n, nil
}

type btree struct {
	root uint64
	pa   pageAccess
}

// createBTree allocates an empty leaf root and returns its page id.
func createBTree(pa pageAccess) (uint64, error) {
	id, err := pa.allocate()
	if err != nil {
		return 0, err
	}
	root := &node{id: id, leaf: true}
	if err := pa.write(id, root.encode()); err != nil {
		return 0, err
	}
	return id, nil
}

func openBTree(pa pageAccess, root uint64) *btree {
	return &btree{root: root, pa: pa}
}

func (t *btree) readNode(id uint64) (*node, error) {
	buf, err := t.pa.read(id)
	if err != nil {
		return nil, err
	}
	return decodeNode(id, buf)
}

func (t *btree) writeNode(n *node) error {
	return t.pa.write(n.id, n.encode())
}

// childIndex picks the subtree for key k: the number of separators <= k.
func (n *node) childIndex(k int64) int {
	return sort.Search(len(n.keys), func(i int) bool { return n.keys[i] > k })
}

func (t *btree) findLeaf(k int64) (*node, []*node, error) {
	var path []*node
	n, err := t.readNode(t.root)
	if err != nil {
		return nil, nil, err
	}
	for !n.leaf {
		path = append(path, n)
		n, err = t.readNode(n.children[n.childIndex(k)])
		if err != nil {
			return nil, nil, err
		}
	}
	return n, path, nil
}

// lookup returns the payload stored under k.
func (t *btree) lookup(k int64) ([]byte, bool, error) {
	leaf, _, err := t.findLeaf(k)
	if err != nil {
		return nil, false, err
	}
	i := sort.Search(len(leaf.cells), func(i int) bool { return leaf.cells[i].key >= k })
	if i >= len(leaf.cells) || leaf.cells[i].key != k {
		return nil, false, nil
	}
	payload, err := t.resolvePayload(leaf.cells[i])
	return payload, err == nil, err
}

func (t *btree) resolvePayload(c leafCell) ([]byte, error) {
	if !c.overflow {
		return c.data, nil
	}
	return readOverflow(t.pa, c.head, c.length)
}

// insert stores payload under k. When the key exists and replace is false
// nothing is written and existed is true.
func (t *btree) insert(k int64, payload []byte, replace bool) (existed bool, err error) {
	leaf, path, err := t.findLeaf(k)
	if err != nil {
		return false, err
	}
	i := sort.Search(len(leaf.cells), func(i int) bool { return leaf.cells[i].key >= k })
	if i < len(leaf.cells) && leaf.cells[i].key == k {
		if !replace {
			return true, nil
		}
		if leaf.cells[i].overflow {
			if err := freeOverflow(t.pa, leaf.cells[i].head); err != nil {
				return true, err
			}
		}
		cell, err := t.makeCell(k, payload)
		if err != nil {
			return true, err
		}
		leaf.cells[i] = cell
		if leaf.size() > PageSize {
			return true, t.splitAndWrite(leaf, path)
		}
		return true, t.writeNode(leaf)
	}
	cell, err := t.makeCell(k, payload)
	if err != nil {
		return false, err
	}
	leaf.cells = append(leaf.cells, leafCell{})
	copy(leaf.cells[i+1:], leaf.cells[i:])
	leaf.cells[i] = cell
	if leaf.size() > PageSize {
		return false, t.splitAndWrite(leaf, path)
	}
	return false, t.writeNode(leaf)
}

func (t *btree) makeCell(k int64, payload []byte) (leafCell, error) {
	if len(payload) <= maxInlinePayload {
		return leafCell{key: k, length: uint32(len(payload)), data: append([]byte(nil), payload...)}, nil
	}
	head, err := writeOverflow(t.pa, payload)
	if err != nil {
		return leafCell{}, err
	}
	return leafCell{key: k, overflow: true, length: uint32(len(payload)), head: head}, nil
}

// splitAndWrite halves an oversized leaf and pushes the separator up,
// splitting interior nodes as needed. The root splits in place so its page
// id is stable.
func (t *btree) splitAndWrite(leaf *node, path []*node) error {
	rightID, err := t.pa.allocate()
	if err != nil {
		return err
	}
	mid := len(leaf.cells) / 2
	right := &node{id: rightID, leaf: true, next: leaf.next}
	right.cells = append(right.cells, leaf.cells[mid:]...)
	leaf.cells = leaf.cells[:mid]
	leaf.next = rightID
	sep := right.cells[0].key

	if leaf.id == t.root && len(path) == 0 {
		return t.splitRoot(leaf, right, sep)
	}
	if err := t.writeNode(leaf); err != nil {
		return err
	}
	if err := t.writeNode(right); err != nil {
		return err
	}
	return t.insertSeparator(path, sep, rightID)
}

// splitRoot turns the root page into an interior node over two fresh
// children.
func (t *btree) splitRoot(left, right *node, sep int64) error {
	leftID, err := t.pa.allocate()
	if err != nil {
		return err
	}
	movedLeft := *left
	movedLeft.id = leftID
	if movedLeft.leaf {
		movedLeft.next = right.id
	}
	if err := t.writeNode(&movedLeft); err != nil {
		return err
	}
	if err := t.writeNode(right); err != nil {
		return err
	}
	newRoot := &node{id: t.root, keys: []int64{sep}, children: []uint64{leftID, right.id}}
	return t.writeNode(newRoot)
}

func (t *btree) insertSeparator(path []*node, sep int64, child uint64) error {
	parent := path[len(path)-1]
	i := sort.Search(len(parent.keys), func(i int) bool { return parent.keys[i] > sep })
	parent.keys = append(parent.keys, 0)
	copy(parent.keys[i+1:], parent.keys[i:])
	parent.keys[i] = sep
	parent.children = append(parent.children, 0)
	copy(parent.children[i+2:], parent.children[i+1:])
	parent.children[i+1] = child

	if parent.size() <= PageSize {
		return t.writeNode(parent)
	}

	rightID, err := t.pa.allocate()
	if err != nil {
		return err
	}
	mid := len(parent.keys) / 2
	upKey := parent.keys[mid]
	right := &node{id: rightID}
	right.keys = append(right.keys, parent.keys[mid+1:]...)
	right.children = append(right.children, parent.children[mid+1:]...)
	parent.keys = parent.keys[:mid]
	parent.children = parent.children[:mid+1]

	if parent.id == t.root && len(path) == 1 {
		return t.splitRoot(parent, right, upKey)
	}
	if err := t.writeNode(parent); err != nil {
		return err
	}
	if err := t.writeNode(right); err != nil {
		return err
	}
	return t.insertSeparator(path[:len(path)-1], upKey, rightID)
}

// delete removes k. Leaves are not rebalanced; separators stay valid as
// pure dividers even when a leaf drains.
func (t *btree) delete(k int64) (bool, error) {
	leaf, _, err := t.findLeaf(k)
	if err != nil {
		return false, err
	}
	i := sort.Search(len(leaf.cells), func(i int) bool { return leaf.cells[i].key >= k })
	if i >= len(leaf.cells) || leaf.cells[i].key != k {
		return false, nil
	}
	if leaf.cells[i].overflow {
		if err := freeOverflow(t.pa, leaf.cells[i].head); err != nil {
			return false, err
		}
	}
	leaf.cells = append(leaf.cells[:i], leaf.cells[i+1:]...)
	return true, t.writeNode(leaf)
}

// maxKey reports the largest key in the tree, used for row id assignment.
func (t *btree) maxKey() (int64, bool, error) {
	n, err := t.readNode(t.root)
	if err != nil {
		return 0, false, err
	}
	for !n.leaf {
		n, err = t.readNode(n.children[len(n.children)-1])
		if err != nil {
			return 0, false, err
		}
	}
	// The rightmost leaf can be empty after deletes; walking the chain
	// backwards is not possible, so fall back to a full scan in that case.
	if len(n.cells) > 0 {
		return n.cells[len(n.cells)-1].key, true, nil
	}
	max := int64(0)
	found := false
	it, err := t.seek(minInt64)
	if err != nil {
		return 0, false, err
	}
	for {
		k, _, ok, err := it.next()
		if err != nil {
			return 0, false, err
		}
		if !ok {
			break
		}
		max, found = k, true
	}
	return max, found, nil
}

const minInt64 = -1 << 63

// treeIterator walks leaf cells in ascending key order.
type treeIterator struct {
	t    *btree
	leaf *node
	idx  int
}

// seek positions an iterator at the first key >= start.
func (t *btree) seek(start int64) (*treeIterator, error) {
	leaf, _, err := t.findLeaf(start)
	if err != nil {
		return nil, err
	}
	idx := sort.Search(len(leaf.cells), func(i int) bool { return leaf.cells[i].key >= start })
	return &treeIterator{t: t, leaf: leaf, idx: idx}, nil
}

func (it *treeIterator) next() (int64, []byte, bool, error) {
	for it.leaf != nil && it.idx >= len(it.leaf.cells) {
		if it.leaf.next == 0 {
			it.leaf = nil
			break
		}
		leaf, err := it.t.readNode(it.leaf.next)
		if err != nil {
			return 0, nil, false, err
		}
		it.leaf = leaf
		it.idx = 0
	}
	if it.leaf == nil {
		return 0, nil, false, nil
	}
	cell := it.leaf.cells[it.idx]
	it.idx++
	payload, err := it.t.resolvePayload(cell)
	if err != nil {
		return 0, nil, false, err
	}
	return cell.key, payload, true, nil
}

// freeTree releases every page of a tree, overflow chains included.
// Used by DROP TABLE.
func freeTree(pa pageAccess, root uint64) error {
	t := openBTree(pa, root)
	n, err := t.readNode(root)
	if err != nil {
		return err
	}
	if !n.leaf {
		for _, child := range n.children {
			if err := freeTree(pa, child); err != nil {
				return err
			}
		}
	} else {
		for _, c := range n.cells {
			if c.overflow {
				if err := freeOverflow(pa, c.head); err != nil {
					return err
				}
			}
		}
	}
	return pa.free(root)
}

// Overflow chains: 8-byte next pointer, 4-byte chunk length, data.
func writeOverflow(pa pageAccess, payload []byte) (uint64, error) {
	var head, prev uint64
	var prevPage []byte
	for off := 0; off < len(payload); off += overflowDataCap {
		end := off + overflowDataCap
		if end > len(payload) {
			end = len(payload)
		}
		id, err := pa.allocate()
		if err != nil {
			return 0, err
		}
		page := make([]byte, PageSize)
		binary.LittleEndian.PutUint32(page[8:], uint32(end-off))
		copy(page[12:], payload[off:end])
		if prev == 0 {
			head = id
		} else {
			binary.LittleEndian.PutUint64(prevPage[:8], id)
			if err := pa.write(prev, prevPage); err != nil {
				return 0, err
			}
		}
		prev, prevPage = id, page
	}
	if prev != 0 {
		if err := pa.write(prev, prevPage); err != nil {
			return 0, err
		}
	}
	return head, nil
}

func readOverflow(pa pageAccess, head uint64, total uint32) ([]byte, error) {
	out := make([]byte, 0, total)
	id := head
	for id != 0 {
		page, err := pa.read(id)
		if err != nil {
			return nil, err
		}
		next := binary.LittleEndian.Uint64(page[:8])
		length := binary.LittleEndian.Uint32(page[8:12])
		if int(length) > overflowDataCap {
			return nil, &domain.CorruptPageError{PageID: id, Detail: "oversized overflow chunk"}
		}
		out = append(out, page[12:12+length]...)
		id = next
	}
	if uint32(len(out)) != total {
		return nil, &domain.CorruptPageError{PageID: head, Detail: "overflow chain length mismatch"}
	}
	return out, nil
}

func freeOverflow(pa pageAccess, head uint64) error {
	id := head
	for id != 0 {
		page, err := pa.read(id)
		if err != nil {
			return err
		}
		next := binary.LittleEndian.Uint64(page[:8])
		if err := pa.free(id); err != nil {
			return err
		}
		id = next
	}
	return nil
}
