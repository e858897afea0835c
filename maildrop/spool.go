package maildrop

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
)

const spoolHeaderSize = 16

var (
	errSpoolClosed     = errors.New("spool closed")
	errSpoolSaturated  = errors.New("spool drain queue is saturated")
	spoolChecksumTable = crc32.MakeTable(crc32.Castagnoli)
)

// spoolMessage is one queued mail, framed into a segment file as a
// 16-byte header (payload length, CRC, offset, little endian) plus the
// JSON payload.
type spoolMessage struct {
	Offset    uint64    `json:"offset"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
	Attempt   int       `json:"attempt"`
	LastErr   string    `json:"lastErr,omitempty"`

	encodedSize int64
}

type spoolSegment struct {
	baseOffset uint64
	lastOffset uint64
	file       *os.File
	writer     *bufio.Writer
	size       int64
	path       string
}

// SpoolConfig tunes the durable mail outbox.
type SpoolConfig struct {
	Dir          string
	SegmentBytes int64
	SendTimeout  time.Duration
	RetryInitial time.Duration
	RetryMax     time.Duration
	BufferSize   int
}

// Spool persists mail that could not be sent and drains it in the
// background. The checkpoint advances only once every earlier message has
// been delivered, so a crash replays rather than drops.
type Spool struct {
	cfg    SpoolConfig
	logger *log.Logger

	mu              sync.Mutex
	segments        []*spoolSegment
	nextOffset      uint64
	committedOffset uint64
	closed          bool

	stateMu   sync.Mutex
	inflight  map[uint64]*spoolMessage
	acked     map[uint64]struct{}
	nextAck   uint64
	recovered []*spoolMessage

	started bool
	workCh  chan *spoolMessage
	stopCh  chan struct{}
	doneCh  chan struct{}
	retryWG sync.WaitGroup
}

// OpenSpool loads existing segments, truncating any partially written tail
// record, and queues every message past the checkpoint for redelivery.
func OpenSpool(cfg SpoolConfig, logger *log.Logger) (*Spool, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("spool dir required")
	}
	if cfg.SegmentBytes <= 0 {
		cfg.SegmentBytes = 16 * 1024 * 1024
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	if cfg.RetryInitial <= 0 {
		cfg.RetryInitial = time.Second
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 5 * time.Minute
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}

	s := &Spool{
		cfg:      cfg,
		logger:   logger,
		inflight: make(map[uint64]*spoolMessage),
		acked:    make(map[uint64]struct{}),
		workCh:   make(chan *spoolMessage, cfg.BufferSize),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}

	checkpoint, err := s.readCheckpoint()
	if err != nil {
		return nil, err
	}
	s.committedOffset = checkpoint
	s.nextOffset = checkpoint + 1
	s.nextAck = checkpoint

	paths, err := filepath.Glob(filepath.Join(cfg.Dir, "segment-*.wal"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	for _, path := range paths {
		seg, msgs, err := s.loadSegment(path)
		if err != nil {
			return nil, err
		}
		if seg == nil {
			continue
		}
		s.segments = append(s.segments, seg)
		for _, msg := range msgs {
			if msg.Offset >= s.nextOffset {
				s.nextOffset = msg.Offset + 1
			}
			if msg.Offset > s.committedOffset {
				s.inflight[msg.Offset] = msg
				s.recovered = append(s.recovered, msg)
			}
		}
	}

	if len(s.segments) == 0 {
		if err := s.openNewSegmentLocked(); err != nil {
			return nil, err
		}
	} else {
		last := s.segments[len(s.segments)-1]
		if _, err := last.file.Seek(last.size, io.SeekStart); err != nil {
			return nil, err
		}
		last.writer = bufio.NewWriterSize(last.file, 64*1024)
	}

	sort.Slice(s.recovered, func(i, j int) bool { return s.recovered[i].Offset < s.recovered[j].Offset })
	return s, nil
}

// Start launches the drain loop delivering spooled mail through mailer.
func (s *Spool) Start(mailer Mailer) {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	go func() {
		for _, msg := range s.recovered {
			select {
			case s.workCh <- msg:
			case <-s.stopCh:
				return
			}
		}
	}()
	go s.drain(mailer)
}

// Enqueue persists a message and hands it to the drain loop.
func (s *Spool) Enqueue(subject, body string) error {
	msg := &spoolMessage{
		Subject:   subject,
		Body:      body,
		Timestamp: time.Now().UTC(),
	}

	s.mu.Lock()
	if err := s.appendLocked(msg); err != nil {
		s.mu.Unlock()
		return err
	}

	s.stateMu.Lock()
	s.inflight[msg.Offset] = msg
	s.stateMu.Unlock()

	select {
	case s.workCh <- msg:
	default:
		s.stateMu.Lock()
		delete(s.inflight, msg.Offset)
		s.stateMu.Unlock()
		if err := s.rollbackLocked(msg); err != nil {
			s.logger.WithError(err).Error("spool rollback failed")
		}
		s.mu.Unlock()
		return errSpoolSaturated
	}
	s.mu.Unlock()
	return nil
}

// Pending reports how many messages await delivery.
func (s *Spool) Pending() int {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return len(s.inflight)
}

// Close stops the drain loop and closes segment files. Pending messages
// stay on disk and are redelivered on the next open.
func (s *Spool) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	started := s.started
	s.mu.Unlock()

	close(s.stopCh)
	if started {
		<-s.doneCh
		s.retryWG.Wait()
	}

	s.mu.Lock()
	for _, seg := range s.segments {
		if seg.writer != nil {
			seg.writer.Flush()
		}
		seg.file.Close()
	}
	s.mu.Unlock()
}

func (s *Spool) drain(mailer Mailer) {
	defer close(s.doneCh)
	for {
		select {
		case msg := <-s.workCh:
			if msg == nil {
				continue
			}
			s.deliver(mailer, msg)
		case <-s.stopCh:
			return
		}
	}
}

func (s *Spool) deliver(mailer Mailer, msg *spoolMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SendTimeout)
	err := mailer.Send(ctx, msg.Subject, msg.Body)
	cancel()
	if err != nil {
		msg.Attempt++
		msg.LastErr = err.Error()
		s.logger.WithError(err).WithFields(log.Fields{
			"offset":  msg.Offset,
			"attempt": msg.Attempt,
		}).Warn("spooled mail delivery failed")
		s.scheduleRetry(msg)
		return
	}
	s.markDelivered(msg)
}

// markDelivered acks the message and advances the checkpoint across the
// contiguous prefix of delivered offsets.
func (s *Spool) markDelivered(msg *spoolMessage) {
	var maxCommit uint64

	s.stateMu.Lock()
	delete(s.inflight, msg.Offset)
	s.acked[msg.Offset] = struct{}{}
	for {
		next := s.nextAck + 1
		if _, ok := s.acked[next]; !ok {
			break
		}
		delete(s.acked, next)
		s.nextAck = next
		maxCommit = next
	}
	s.stateMu.Unlock()

	if maxCommit > 0 {
		s.mu.Lock()
		if err := s.commitLocked(maxCommit); err != nil {
			s.logger.WithError(err).Error("failed to commit spool checkpoint")
		}
		s.mu.Unlock()
	}
}

func (s *Spool) scheduleRetry(msg *spoolMessage) {
	delay := spoolBackoff(msg.Attempt, s.cfg.RetryInitial, s.cfg.RetryMax)
	s.retryWG.Add(1)
	timer := time.NewTimer(delay)
	go func(m *spoolMessage) {
		defer s.retryWG.Done()
		defer timer.Stop()
		select {
		case <-timer.C:
			select {
			case s.workCh <- m:
			case <-s.stopCh:
			}
		case <-s.stopCh:
		}
	}(msg)
}

func spoolBackoff(attempt int, initial, max time.Duration) time.Duration {
	if attempt <= 0 {
		return initial
	}
	backoff := float64(initial) * math.Pow(2, float64(attempt-1))
	if backoff > float64(max) {
		backoff = float64(max)
	}
	jitter := 0.2 * backoff
	return time.Duration(backoff + (rand.Float64()-0.5)*2*jitter)
}

func (s *Spool) readCheckpoint() (uint64, error) {
	data, err := os.ReadFile(filepath.Join(s.cfg.Dir, "checkpoint"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return 0, nil
	}
	val, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid spool checkpoint: %w", err)
	}
	return val, nil
}

func (s *Spool) loadSegment(path string) (*spoolSegment, []*spoolMessage, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}

	seg := &spoolSegment{path: path, file: f, size: fi.Size()}
	msgs := make([]*spoolMessage, 0)
	reader := bufio.NewReaderSize(f, 64*1024)
	var lastOffset uint64
	var pos int64
	for {
		hdr := make([]byte, spoolHeaderSize)
		start := pos
		n, err := io.ReadFull(reader, hdr)
		pos += int64(n)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				if truncateErr := f.Truncate(start); truncateErr != nil {
					return nil, nil, truncateErr
				}
				break
			}
			return nil, nil, err
		}

		length := binary.LittleEndian.Uint32(hdr[0:4])
		crc := binary.LittleEndian.Uint32(hdr[4:8])
		hdrOffset := binary.LittleEndian.Uint64(hdr[8:16])
		if length == 0 {
			continue
		}
		buf := make([]byte, length)
		n, err = io.ReadFull(reader, buf)
		pos += int64(n)
		if err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				if truncateErr := f.Truncate(start); truncateErr != nil {
					return nil, nil, truncateErr
				}
				break
			}
			return nil, nil, err
		}

		if crc32.Checksum(buf, spoolChecksumTable) != crc {
			if err := f.Truncate(start); err != nil {
				return nil, nil, err
			}
			break
		}

		var msg spoolMessage
		if err := sonic.Unmarshal(buf, &msg); err != nil {
			return nil, nil, err
		}
		if msg.Offset != hdrOffset {
			return nil, nil, fmt.Errorf("spool offset mismatch: header=%d payload=%d", hdrOffset, msg.Offset)
		}
		if seg.baseOffset == 0 {
			seg.baseOffset = msg.Offset
		}
		seg.lastOffset = msg.Offset
		msg.encodedSize = int64(spoolHeaderSize) + int64(length)
		lastOffset = msg.Offset
		msgs = append(msgs, &msg)
	}

	seg.size = pos
	if seg.baseOffset == 0 {
		seg.baseOffset = lastOffset
	}

	return seg, msgs, nil
}

func (s *Spool) openNewSegmentLocked() error {
	if s.closed {
		return errSpoolClosed
	}
	name := fmt.Sprintf("segment-%020d.wal", s.nextOffset)
	path := filepath.Join(s.cfg.Dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	s.segments = append(s.segments, &spoolSegment{
		baseOffset: s.nextOffset,
		lastOffset: s.nextOffset - 1,
		file:       f,
		writer:     bufio.NewWriterSize(f, 64*1024),
		path:       path,
	})
	return nil
}

func (s *Spool) appendLocked(msg *spoolMessage) error {
	if s.closed {
		return errSpoolClosed
	}
	if len(s.segments) == 0 {
		if err := s.openNewSegmentLocked(); err != nil {
			return err
		}
	}
	current := s.segments[len(s.segments)-1]
	if current.size >= s.cfg.SegmentBytes {
		if err := current.writer.Flush(); err != nil {
			return err
		}
		if err := current.file.Sync(); err != nil {
			return err
		}
		current.writer = nil
		if err := current.file.Close(); err != nil {
			return err
		}
		if err := s.openNewSegmentLocked(); err != nil {
			return err
		}
		current = s.segments[len(s.segments)-1]
	}

	msg.Offset = s.nextOffset
	s.nextOffset++

	payload, err := sonic.Marshal(msg)
	if err != nil {
		return err
	}
	header := make([]byte, spoolHeaderSize)
	binary.LittleEndian.PutUint32(header[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(header[4:8], crc32.Checksum(payload, spoolChecksumTable))
	binary.LittleEndian.PutUint64(header[8:16], msg.Offset)

	if _, err := current.writer.Write(header); err != nil {
		return err
	}
	if _, err := current.writer.Write(payload); err != nil {
		return err
	}
	if err := current.writer.Flush(); err != nil {
		return err
	}
	if err := current.file.Sync(); err != nil {
		return err
	}

	msg.encodedSize = int64(len(header) + len(payload))
	current.size += msg.encodedSize
	current.lastOffset = msg.Offset
	return nil
}

func (s *Spool) rollbackLocked(msg *spoolMessage) error {
	if len(s.segments) == 0 {
		return nil
	}
	current := s.segments[len(s.segments)-1]
	if msg.Offset != current.lastOffset {
		return fmt.Errorf("spool rollback mismatch: offset=%d last=%d", msg.Offset, current.lastOffset)
	}
	if current.size < msg.encodedSize {
		return fmt.Errorf("spool rollback underflow")
	}
	current.size -= msg.encodedSize
	if err := current.file.Truncate(current.size); err != nil {
		return err
	}
	if _, err := current.file.Seek(current.size, io.SeekStart); err != nil {
		return err
	}
	current.writer = bufio.NewWriterSize(current.file, 64*1024)
	s.nextOffset = msg.Offset
	current.lastOffset--
	return nil
}

func (s *Spool) commitLocked(offset uint64) error {
	if offset <= s.committedOffset {
		return nil
	}
	s.committedOffset = offset
	path := filepath.Join(s.cfg.Dir, "checkpoint")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.FormatUint(offset, 10)), 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	s.pruneSegmentsLocked()
	return nil
}

func (s *Spool) pruneSegmentsLocked() {
	for len(s.segments) > 1 {
		seg := s.segments[0]
		if seg.lastOffset > s.committedOffset {
			break
		}
		if seg.writer != nil {
			seg.writer.Flush()
		}
		seg.file.Close()
		if err := os.Remove(seg.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.WithError(err).Warnf("failed to remove spool segment %s", seg.path)
			break
		}
		s.segments = s.segments[1:]
	}
}
