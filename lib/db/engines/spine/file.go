package spine

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"lukechampine.com/blake3"
)

// --------------------------------------------------------------------------
// Spine file format
// --------------------------------------------------------------------------
//
//	magic     "TKSSPINE"
//	version   u8
//	flags     u8            (bit 0: body is zstd compressed)
//	body      ...
//	checksum  [32]byte      blake3-256 of the body as stored
//
// The uncompressed body is
//
//	[slotCount:u32][present:u32] then present times [slot:u32][length:u32][bytes]

const (
	magicNum       = "TKSSPINE"
	spineVersion   = 1
	flagCompressed = 1 << 0
	checksumSize   = 32
	headerSize     = len(magicNum) + 2

	countFileName   = "count"
	spineFilePrefix = "spine-"
)

// ErrChecksum is returned when a spine file does not match its checksum
var ErrChecksum = errors.New("spine file checksum mismatch")

// spineEntry is one occupied slot in encoded form
type spineEntry struct {
	slot  uint32
	value []byte
}

// spineFile encodes and decodes spine files of one map directory
type spineFile struct {
	dir      string
	compress bool
	encoder  *zstd.Encoder

	// compressed files are readable regardless of compress
	decoderOnce sync.Once
	decoder     *zstd.Decoder
	decoderErr  error
}

func newSpineFile(dir string, compress bool) (*spineFile, error) {
	f := &spineFile{dir: dir, compress: compress}
	if compress {
		// EncodeAll may be used concurrently
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, errors.Wrap(err, "creating zstd encoder")
		}
		f.encoder = enc
	}
	return f, nil
}

func (f *spineFile) getDecoder() (*zstd.Decoder, error) {
	f.decoderOnce.Do(func() {
		f.decoder, f.decoderErr = zstd.NewReader(nil)
	})
	return f.decoder, f.decoderErr
}

func (f *spineFile) close() {
	if f.encoder != nil {
		_ = f.encoder.Close()
	}
	if f.decoder != nil {
		f.decoder.Close()
	}
}

func (f *spineFile) path(index int) string {
	return filepath.Join(f.dir, spineFilePrefix+strconv.Itoa(index))
}

// write replaces the file of spine index with the given entries.
// The file is written next to the target and renamed into place.
func (f *spineFile) write(index, slotCount int, entries []spineEntry) (int, error) {
	body := make([]byte, 0, 8+len(entries)*16)
	body = binary.BigEndian.AppendUint32(body, uint32(slotCount))
	body = binary.BigEndian.AppendUint32(body, uint32(len(entries)))
	for _, e := range entries {
		body = binary.BigEndian.AppendUint32(body, e.slot)
		body = binary.BigEndian.AppendUint32(body, uint32(len(e.value)))
		body = append(body, e.value...)
	}

	var flags byte
	if f.compress {
		body = f.encoder.EncodeAll(body, make([]byte, 0, len(body)/2))
		flags |= flagCompressed
	}
	sum := blake3.Sum256(body)

	out := make([]byte, 0, headerSize+len(body)+checksumSize)
	out = append(out, magicNum...)
	out = append(out, spineVersion, flags)
	out = append(out, body...)
	out = append(out, sum[:]...)

	target := f.path(index)
	tmp := target + ".tmp"
	if err := writeFileSync(tmp, out); err != nil {
		return 0, errors.Wrapf(err, "writing spine %d", index)
	}
	if err := os.Rename(tmp, target); err != nil {
		return 0, errors.Wrapf(err, "installing spine %d", index)
	}
	return len(out), nil
}

// read returns the entries of spine index; a missing file is an empty spine
func (f *spineFile) read(index, slotCount int) ([]spineEntry, error) {
	raw, err := os.ReadFile(f.path(index))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading spine %d", index)
	}

	if len(raw) < headerSize+checksumSize || string(raw[:len(magicNum)]) != magicNum {
		return nil, fmt.Errorf("spine %d: invalid file format: magic number mismatch", index)
	}
	if v := raw[len(magicNum)]; v != spineVersion {
		return nil, fmt.Errorf("spine %d: unsupported version: %d (expected %d)", index, v, spineVersion)
	}
	flags := raw[len(magicNum)+1]

	body := raw[headerSize : len(raw)-checksumSize]
	if sum := blake3.Sum256(body); !bytes.Equal(sum[:], raw[len(raw)-checksumSize:]) {
		return nil, errors.Wrapf(ErrChecksum, "spine %d", index)
	}
	if flags&flagCompressed != 0 {
		dec, err := f.getDecoder()
		if err != nil {
			return nil, errors.Wrap(err, "creating zstd decoder")
		}
		if body, err = dec.DecodeAll(body, nil); err != nil {
			return nil, errors.Wrapf(err, "decompressing spine %d", index)
		}
	}

	return decodeBody(index, slotCount, body)
}

func decodeBody(index, slotCount int, body []byte) ([]spineEntry, error) {
	corrupt := func(what string) error {
		return fmt.Errorf("spine %d: corrupt body: %s", index, what)
	}

	if len(body) < 8 {
		return nil, corrupt("truncated header")
	}
	if stored := int(binary.BigEndian.Uint32(body)); stored != slotCount {
		return nil, fmt.Errorf("spine %d was written with %d slots, configured spine size is %d", index, stored, slotCount)
	}
	present := int(binary.BigEndian.Uint32(body[4:]))
	if present > slotCount {
		return nil, corrupt("too many entries")
	}

	entries := make([]spineEntry, 0, present)
	pos := 8
	for i := 0; i < present; i++ {
		if pos+8 > len(body) {
			return nil, corrupt("truncated entry")
		}
		slot := binary.BigEndian.Uint32(body[pos:])
		n := int(binary.BigEndian.Uint32(body[pos+4:]))
		pos += 8
		if int(slot) >= slotCount || n < 0 || pos+n > len(body) {
			return nil, corrupt("entry out of bounds")
		}
		entries = append(entries, spineEntry{slot: slot, value: body[pos : pos+n : pos+n]})
		pos += n
	}
	if pos != len(body) {
		return nil, corrupt("trailing bytes")
	}
	return entries, nil
}

// --------------------------------------------------------------------------
// Count file
// --------------------------------------------------------------------------

// readCount returns the number of spines recorded in the directory
func (f *spineFile) readCount() (int, error) {
	raw, err := os.ReadFile(filepath.Join(f.dir, countFileName))
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "reading spine count")
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid spine count %q", strings.TrimSpace(string(raw)))
	}
	return n, nil
}

func (f *spineFile) writeCount(n int) error {
	target := filepath.Join(f.dir, countFileName)
	if err := writeFileSync(target+".tmp", []byte(strconv.Itoa(n)+"\n")); err != nil {
		return errors.Wrap(err, "writing spine count")
	}
	return errors.Wrap(os.Rename(target+".tmp", target), "installing spine count")
}

func writeFileSync(path string, data []byte) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		return err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
