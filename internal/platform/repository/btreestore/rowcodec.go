package btreestore

import (
	"CipherDB/internal/domain"
	"encoding/binary"
	"fmt"
	"math"
)

// Row payload encoding: uint16 value count, then per value a type byte
// followed by its body. Integers and reals are 8 bytes little-endian,
// text and blobs are length-prefixed, nulls have no body.

func encodeRow(values []domain.Value) []byte {
	size := 2
	for _, v := range values {
		size++
		switch v.Type {
		case domain.TypeInteger, domain.TypeReal:
			size += 8
		case domain.TypeText:
			size += 4 + len(v.Text)
		case domain.TypeBlob:
			size += 4 + len(v.Blob)
		}
	}
	buf := make([]byte, 0, size)
	var scratch [8]byte
	binary.LittleEndian.PutUint16(scratch[:2], uint16(len(values)))
	buf = append(buf, scratch[:2]...)
	for _, v := range values {
		buf = append(buf, byte(v.Type))
		switch v.Type {
		case domain.TypeInteger:
			binary.LittleEndian.PutUint64(scratch[:], uint64(v.Int))
			buf = append(buf, scratch[:]...)
		case domain.TypeReal:
			binary.LittleEndian.PutUint64(scratch[:], math.Float64bits(v.Real))
			buf = append(buf, scratch[:]...)
		case domain.TypeText:
			binary.LittleEndian.PutUint32(scratch[:4], uint32(len(v.Text)))
			buf = append(buf, scratch[:4]...)
			buf = append(buf, v.Text...)
		case domain.TypeBlob:
			binary.LittleEndian.PutUint32(scratch[:4], uint32(len(v.Blob)))
			buf = append(buf, scratch[:4]...)
			buf = append(buf, v.Blob...)
		}
	}
	return buf
}

func decodeRow(payload []byte) ([]domain.Value, error) {
	if len(payload) < 2 {
		return nil, fmt.Errorf("row payload too short")
	}
	count := int(binary.LittleEndian.Uint16(payload))
	values := make([]domain.Value, 0, count)
	off := 2
	for i := 0; i < count; i++ {
		if off >= len(payload) {
			return nil, fmt.Errorf("row payload truncated at value %d", i)
		}
		t := domain.ValueType(payload[off])
		off++
		switch t {
		case domain.TypeNull:
			values = append(values, domain.NullValue())
		case domain.TypeInteger:
			if off+8 > len(payload) {
				return nil, fmt.Errorf("row payload truncated at value %d", i)
			}
			values = append(values, domain.IntegerValue(int64(binary.LittleEndian.Uint64(payload[off:]))))
			off += 8
		case domain.TypeReal:
			if off+8 > len(payload) {
				return nil, fmt.Errorf("row payload truncated at value %d", i)
			}
			values = append(values, domain.RealValue(math.Float64frombits(binary.LittleEndian.Uint64(payload[off:]))))
			off += 8
		case domain.TypeText, domain.TypeBlob:
			if off+4 > len(payload) {
				return nil, fmt.Errorf("row payload truncated at value %d", i)
			}
			length := int(binary.LittleEndian.Uint32(payload[off:]))
			off += 4
			if off+length > len(payload) {
				return nil, fmt.Errorf("row payload truncated at value %d", i)
			}
			if t == domain.TypeText {
				values = append(values, domain.TextValue(string(payload[off:off+length])))
			} else {
				values = append(values, domain.BlobValue(append([]byte(nil), payload[off:off+length]...)))
			}
			off += length
		default:
			return nil, fmt.Errorf("unknown value type %d", t)
		}
	}
	return values, nil
}
