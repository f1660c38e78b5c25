package encoding

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"image"
	"sync"
)

// MemoryMIMEType identifies the MemorySink container.
const MemoryMIMEType = "video/x-cardcast-frames"

var memoryMagic = [4]byte{'C', 'C', 'F', 'R'}

// MemorySink writes a frame-indexed container without any external encoder.
// Every frame becomes an 8-byte record (index, CRC-32 of the pixels) so output
// is deterministic for identical input.
type MemorySink struct {
	stream Stream

	mu      sync.Mutex
	gate    *eventGate
	frames  uint32
	started bool
	closed  bool
}

func NewMemorySink(stream Stream) (*MemorySink, error) {
	if err := stream.Validate(); err != nil {
		return nil, err
	}
	return &MemorySink{stream: stream}, nil
}

// MemoryFactory returns a Factory producing MemorySinks.
func MemoryFactory() Factory {
	return func(_ context.Context, stream Stream) (Sink, error) {
		return NewMemorySink(stream)
	}
}

func (m *MemorySink) MIMEType() string { return MemoryMIMEType }

func (m *MemorySink) Start(_ context.Context, events Events) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return errors.New("memory sink already started")
	}
	m.started = true
	m.gate = &eventGate{events: events}

	var header bytes.Buffer
	header.Write(memoryMagic[:])
	audio := uint32(0)
	if m.stream.HasAudio() {
		audio = 1
	}
	for _, v := range []uint32{uint32(m.stream.Width), uint32(m.stream.Height), uint32(m.stream.FPS), audio} {
		_ = binary.Write(&header, binary.BigEndian, v)
	}
	m.gate.data(header.Bytes())
	return nil
}

func (m *MemorySink) WriteFrame(frame *image.RGBA) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return errors.New("memory sink not started")
	}
	if m.closed {
		return ErrSinkClosed
	}
	payload, err := packFrame(frame, m.stream, make([]byte, m.stream.FrameBytes()))
	if err != nil {
		return err
	}
	record := make([]byte, 8)
	binary.BigEndian.PutUint32(record[:4], m.frames)
	binary.BigEndian.PutUint32(record[4:], crc32.ChecksumIEEE(payload))
	m.frames++
	m.gate.data(record)
	return nil
}

func (m *MemorySink) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return errors.New("memory sink not started")
	}
	if m.closed {
		return nil
	}
	m.closed = true
	trailer := make([]byte, 4)
	binary.BigEndian.PutUint32(trailer, m.frames)
	m.gate.data(trailer)
	m.gate.stop()
	return nil
}

func (m *MemorySink) Abort() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	if m.gate != nil {
		m.gate.mute()
	}
}

// MemoryInfo summarizes a MemorySink container.
type MemoryInfo struct {
	Width    int
	Height   int
	FPS      int
	Frames   int
	HasAudio bool
	Checksum []uint32
}

// ParseMemoryContainer decodes a MemorySink artifact.
func ParseMemoryContainer(data []byte) (MemoryInfo, error) {
	const headerLen = 4 + 4*4
	if len(data) < headerLen+4 || !bytes.Equal(data[:4], memoryMagic[:]) {
		return MemoryInfo{}, errors.New("not a cardcast frame container")
	}
	info := MemoryInfo{
		Width:    int(binary.BigEndian.Uint32(data[4:8])),
		Height:   int(binary.BigEndian.Uint32(data[8:12])),
		FPS:      int(binary.BigEndian.Uint32(data[12:16])),
		HasAudio: binary.BigEndian.Uint32(data[16:20]) == 1,
	}
	body := data[headerLen : len(data)-4]
	if len(body)%8 != 0 {
		return MemoryInfo{}, fmt.Errorf("truncated frame records (%d bytes)", len(body))
	}
	for offset := 0; offset < len(body); offset += 8 {
		index := binary.BigEndian.Uint32(body[offset : offset+4])
		if int(index) != offset/8 {
			return MemoryInfo{}, fmt.Errorf("frame record %d out of order (index %d)", offset/8, index)
		}
		info.Checksum = append(info.Checksum, binary.BigEndian.Uint32(body[offset+4:offset+8]))
	}
	info.Frames = len(info.Checksum)
	if trailer := int(binary.BigEndian.Uint32(data[len(data)-4:])); trailer != info.Frames {
		return MemoryInfo{}, fmt.Errorf("frame count mismatch: trailer %d, records %d", trailer, info.Frames)
	}
	return info, nil
}
