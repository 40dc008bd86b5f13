// Package replay 对局回放流：版本标记、初始化数据、逐帧压缩快照
package replay

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"
	"google.golang.org/protobuf/encoding/protowire"

	"elympics/pkg/snapshot"
	"elympics/pkg/wire"
)

// Version 当前回放格式版本
const Version = "ELYMPICS-REPLAY/1"

// MaxRecordSize 单条记录的最大长度
const MaxRecordSize = 16 << 20

var (
	// ErrUnsupportedVersion 无法识别的回放版本
	ErrUnsupportedVersion = errors.New("replay: 不支持的版本")
	// ErrRecordTooLarge 记录长度超出限制
	ErrRecordTooLarge = errors.New("replay: 记录过大")
)

// InitData 对局初始化信息
type InitData struct {
	MatchID        string
	TicksPerSecond int
	Players        int
	StartedAt      time.Time
}

func appendInitData(b []byte, d InitData) []byte {
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, d.MatchID)
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(d.TicksPerSecond))
	b = protowire.AppendTag(b, 3, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(d.Players))
	if !d.StartedAt.IsZero() {
		b = protowire.AppendTag(b, 4, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, uint64(d.StartedAt.UnixNano()))
	}
	return b
}

func parseInitData(b []byte) (InitData, error) {
	var d InitData
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return InitData{}, fmt.Errorf("replay: 初始化数据: %w", protowire.ParseError(n))
		}
		b = b[n:]
		r := wire.NewReader(b)
		switch {
		case num == 1 && typ == protowire.BytesType:
			d.MatchID = r.String()
		case num == 2 && typ == protowire.VarintType:
			d.TicksPerSecond = int(r.Varint())
		case num == 3 && typ == protowire.VarintType:
			d.Players = int(r.Varint())
		case num == 4 && typ == protowire.Fixed64Type:
			d.StartedAt = time.Unix(0, int64(r.Fixed64())).UTC()
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return InitData{}, fmt.Errorf("replay: 初始化数据: %w", protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}
		if r.Err() != nil {
			return InitData{}, fmt.Errorf("replay: 初始化数据: %w", r.Err())
		}
		b = b[r.Offset():]
	}
	return d, nil
}

// Writer 顺序写入回放
type Writer struct {
	w     *bufio.Writer
	enc   *zstd.Encoder
	buf   []byte
	count int
	last  int64
}

// NewWriter 写入版本标记与初始化数据
func NewWriter(w io.Writer, init InitData) (*Writer, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, err
	}
	rw := &Writer{w: bufio.NewWriterSize(w, 64*1024), enc: enc}

	header := protowire.AppendString(nil, Version)
	header = protowire.AppendBytes(header, appendInitData(nil, init))
	if _, err := rw.w.Write(header); err != nil {
		_ = enc.Close()
		return nil, err
	}
	return rw, nil
}

// WriteSnapshot 压缩并写入一帧快照
func (w *Writer) WriteSnapshot(s *snapshot.Snapshot) error {
	w.buf = snapshot.Append(w.buf[:0], s)
	compressed := w.enc.EncodeAll(w.buf, nil)

	var prefix [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(prefix[:], uint64(len(compressed)))
	if _, err := w.w.Write(prefix[:n]); err != nil {
		return err
	}
	if _, err := w.w.Write(compressed); err != nil {
		return err
	}
	w.count++
	w.last = s.Tick
	return nil
}

// Count 已写入的快照数
func (w *Writer) Count() int {
	return w.count
}

// LastTick 最后写入的帧号
func (w *Writer) LastTick() int64 {
	return w.last
}

// Flush 刷出缓冲
func (w *Writer) Flush() error {
	return w.w.Flush()
}

// Close 刷出缓冲并释放压缩器，不关闭底层 io.Writer
func (w *Writer) Close() error {
	err := w.w.Flush()
	if cerr := w.enc.Close(); err == nil {
		err = cerr
	}
	return err
}

// Reader 顺序读取回放
type Reader struct {
	r       *bufio.Reader
	dec     *zstd.Decoder
	init    InitData
	initErr error
	started bool
}

// NewReader 创建读取器
func NewReader(r io.Reader) (*Reader, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &Reader{r: bufio.NewReader(r), dec: dec}, nil
}

func (r *Reader) readRecord() ([]byte, error) {
	n, err := binary.ReadUvarint(r.r)
	if err != nil {
		return nil, err
	}
	if n > MaxRecordSize {
		return nil, fmt.Errorf("%w: %d", ErrRecordTooLarge, n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf, nil
}

// Init 读取并校验版本标记与初始化数据，重复调用返回同一结果
func (r *Reader) Init() (InitData, error) {
	if r.started {
		return r.init, r.initErr
	}
	r.started = true

	version, err := r.readRecord()
	if err != nil {
		r.initErr = fmt.Errorf("replay: 读取版本: %w", err)
		return InitData{}, r.initErr
	}
	if string(version) != Version {
		r.initErr = fmt.Errorf("%w: %q", ErrUnsupportedVersion, version)
		return InitData{}, r.initErr
	}
	raw, err := r.readRecord()
	if err != nil {
		r.initErr = fmt.Errorf("replay: 读取初始化数据: %w", err)
		return InitData{}, r.initErr
	}
	r.init, r.initErr = parseInitData(raw)
	return r.init, r.initErr
}

// Next 读取下一帧快照，结束时返回 io.EOF
func (r *Reader) Next() (*snapshot.Snapshot, error) {
	if _, err := r.Init(); err != nil {
		return nil, err
	}
	raw, err := r.readRecord()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("replay: %w", err)
	}
	decoded, err := r.dec.DecodeAll(raw, nil)
	if err != nil {
		return nil, fmt.Errorf("replay: 解压: %w", err)
	}
	return snapshot.Decode(decoded)
}

// Close 释放解压器
func (r *Reader) Close() {
	r.dec.Close()
}
