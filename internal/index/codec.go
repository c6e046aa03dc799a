package index

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/Borislavv/go-ash-imgcache/model"
	"github.com/vmihailenco/msgpack/v5"
)

type op uint8

const (
	opPut op = iota + 1
	opTouch
	opDelete
)

type record struct {
	Op    op          `msgpack:"o"`
	Entry model.Entry `msgpack:"e"`
}

// maxFrameLen guards against allocating garbage lengths read from a torn frame.
const maxFrameLen = 1 << 20

var errBadChecksum = errors.New("frame checksum mismatch")

// writeFrame writes [len uint32][crc32 uint32][msgpack record].
func writeFrame(w io.Writer, rec *record) error {
	data, err := msgpack.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal index record: %w", err)
	}

	var meta [8]byte
	binary.LittleEndian.PutUint32(meta[0:4], uint32(len(data)))
	binary.LittleEndian.PutUint32(meta[4:8], crc32.ChecksumIEEE(data))
	if _, err = w.Write(meta[:]); err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// readFrame returns io.EOF on a clean end and io.ErrUnexpectedEOF on a torn tail.
// A checksum or decode failure returns errBadChecksum with the frame consumed, so callers may continue.
func readFrame(br *bufio.Reader) (*record, error) {
	var meta [8]byte
	if _, err := io.ReadFull(br, meta[:]); err != nil {
		return nil, err
	}

	sz := binary.LittleEndian.Uint32(meta[0:4])
	if sz > maxFrameLen {
		return nil, io.ErrUnexpectedEOF
	}
	buf := make([]byte, sz)
	if _, err := io.ReadFull(br, buf); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	if crc32.ChecksumIEEE(buf) != binary.LittleEndian.Uint32(meta[4:8]) {
		return nil, errBadChecksum
	}

	rec := &record{}
	if err := msgpack.Unmarshal(buf, rec); err != nil {
		return nil, errBadChecksum
	}
	return rec, nil
}
