// Package ingest accepts client audio streams over websockets and feeds
// them to the mixer.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Raikerian/go-cuse-mixer/internal/config"
	"github.com/Raikerian/go-cuse-mixer/internal/fifo"
	"github.com/Raikerian/go-cuse-mixer/internal/mixer"
	"github.com/Raikerian/go-cuse-mixer/internal/resample"
	"github.com/Raikerian/go-cuse-mixer/pkg/audio"
)

// ErrStreamNotFound is returned for an unknown live stream ID.
var ErrStreamNotFound = errors.New("stream not found")

// maxChannels bounds the channel count a client may announce.
const maxChannels = 8

// Mixer is the part of the mixer the ingest server drives.
type Mixer interface {
	Format() audio.Format
	Register(s *mixer.Stream) error
	Deregister(s *mixer.Stream) error
}

// Server hosts the ingest HTTP and websocket endpoints.
type Server struct {
	cfg      config.IngestConfig
	mixer    Mixer
	history  *History
	logger   *zap.Logger
	upgrader websocket.Upgrader
	mux      *http.ServeMux

	httpServer *http.Server
	listener   net.Listener

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*session
	stopping bool
	wg       sync.WaitGroup
}

// NewServer creates an ingest server. Nothing listens until Start.
func NewServer(cfg config.IngestConfig, m Mixer, logger *zap.Logger) (*Server, error) {
	history, err := NewHistory(cfg.HistorySize)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream history: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:     cfg,
		mixer:   m,
		history: history,
		logger:  logger,
		upgrader: websocket.Upgrader{
			// clients are local producers, not browsers
			CheckOrigin: func(*http.Request) bool { return true },
		},
		mux:      http.NewServeMux(),
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*session),
	}

	s.mux.HandleFunc("GET /streams", s.handleStreams)
	s.mux.HandleFunc("GET /streams/{id}", s.handleStats)
	s.mux.HandleFunc("POST /streams/{id}/volume", s.handleVolume)

	return s, nil
}

// Handler exposes the routes for embedding or testing.
func (s *Server) Handler() http.Handler { return s.mux }

// Start listens on the configured address and serves in the background.
func (s *Server) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Listen, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Ingest server stopped unexpectedly", zap.Error(err))
		}
	}()

	s.logger.Info("Ingest server listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop refuses new streams, disconnects live ones and waits for their
// queues to be released.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopping = true
	for _, sess := range s.sessions {
		sess.end(EndShutdown)
		_ = sess.conn.Close()
	}
	s.mu.Unlock()
	s.cancel()

	var shutdownErr error
	if s.httpServer != nil {
		shutdownErr = s.httpServer.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Ingest server stopped")
		return shutdownErr
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for streams to close: %w", ctx.Err())
	}
}

// Stats returns live stats, falling back to the finished-stream history.
func (s *Server) Stats(id string) (Stats, bool) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if ok {
		return sess.stats(), true
	}
	return s.history.Get(id)
}

// SetVolume changes a live stream's volume. The mixer picks it up on the
// stream's next cycle.
func (s *Server) SetVolume(id string, volume float32) (Stats, error) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return Stats{}, ErrStreamNotFound
	}

	sess.stream.SetVolume(volume)

	s.logger.Debug("Stream volume changed",
		zap.String("stream_id", id),
		zap.Float32("volume", sess.stream.Volume()))
	return sess.stats(), nil
}

// Live lists the stats of every live stream.
func (s *Server) Live() []Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Stats, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.stats())
	}
	return out
}

// streamParams is the stream description a client sends as query values.
type streamParams struct {
	rate     int
	channels int
	volume   float32
	codec    string
}

func (s *Server) parseParams(r *http.Request) (streamParams, error) {
	format := s.mixer.Format()
	q := r.URL.Query()
	p := streamParams{
		rate:     format.SampleRate,
		channels: format.Channels,
		volume:   float32(s.cfg.DefaultVolume),
		codec:    q.Get("codec"),
	}

	if v := q.Get("rate"); v != "" {
		rate, err := strconv.Atoi(v)
		if err != nil || rate <= 0 {
			return p, fmt.Errorf("invalid rate %q", v)
		}
		p.rate = rate
	}
	if v := q.Get("channels"); v != "" {
		ch, err := strconv.Atoi(v)
		if err != nil || ch < 1 || ch > maxChannels {
			return p, fmt.Errorf("invalid channels %q", v)
		}
		p.channels = ch
	}
	if v := q.Get("volume"); v != "" {
		vol, err := strconv.ParseFloat(v, 32)
		if err != nil || vol < 0 {
			return p, fmt.Errorf("invalid volume %q", v)
		}
		p.volume = float32(vol)
	}
	return p, nil
}

// triggerBytes is how much a stream must queue to cover one mixer
// fragment at its own rate and layout.
func triggerBytes(target audio.Format, rate, channels, capacity int) int {
	frameBytes := audio.S16Bytes * channels
	frames := (target.Frames()*rate + target.SampleRate - 1) / target.SampleRate
	return min(max(frames*frameBytes, frameBytes), capacity)
}

// openSession builds the queue, producer and stream for p. The stream is
// not yet registered.
func (s *Server) openSession(p streamParams) (*session, error) {
	dec, err := newDecoder(p.codec, p.rate, p.channels)
	if err != nil {
		return nil, err
	}

	format := s.mixer.Format()
	frameBytes := audio.S16Bytes * p.channels
	capacity := max(s.cfg.QueueBytes-s.cfg.QueueBytes%frameBytes, frameBytes)
	q, err := fifo.New(capacity, triggerBytes(format, p.rate, p.channels, capacity))
	if err != nil {
		return nil, err
	}

	var producer mixer.FrameProducer
	resampled := resample.NeedsConversion(p.rate, p.channels, format)
	if resampled {
		rs, err := resample.New(q, p.rate, p.channels, format)
		if err != nil {
			_ = q.Release()
			return nil, err
		}
		producer = rs
	}

	id := uuid.New().String()
	codec := p.codec
	if codec == "" {
		codec = CodecPCM
	}

	return &session{
		stream:    mixer.NewStream(id, q, producer, p.volume),
		queue:     q,
		decoder:   dec,
		logger:    s.logger.With(zap.String("stream_id", id)),
		codec:     codec,
		rate:      p.rate,
		channels:  p.channels,
		resampled: resampled,
		startedAt: time.Now(),
	}, nil
}

// admit registers sess unless the server is stopping.
func (s *Server) admit(sess *session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopping {
		return errors.New("ingest server is shutting down")
	}
	if err := s.mixer.Register(sess.stream); err != nil {
		return err
	}
	s.sessions[sess.stream.ID] = sess
	s.wg.Add(1)
	return nil
}

func (s *Server) handleStreams(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		writeJSON(w, http.StatusOK, s.Live())
		return
	}

	p, err := s.parseParams(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sess, err := s.openSession(p)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already replied
		_ = sess.queue.Release()
		return
	}
	sess.conn = conn

	if err := s.admit(sess); err != nil {
		s.logger.Warn("Rejected stream", zap.Error(err))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()),
			time.Now().Add(time.Second))
		_ = conn.Close()
		_ = sess.queue.Release()
		return
	}
	defer s.wg.Done()

	s.serve(sess)
}

// serve runs an admitted session to completion.
func (s *Server) serve(sess *session) {
	sess.logger.Info("Stream connected",
		zap.String("codec", sess.codec),
		zap.Int("sample_rate", sess.rate),
		zap.Int("channels", sess.channels),
		zap.Bool("resampled", sess.resampled))

	if err := sess.conn.WriteJSON(map[string]string{"id": sess.stream.ID}); err != nil {
		sess.end(EndError)
	}

	sess.idle = newIdleWatch(s.cfg.IdleTimeout, func() {
		sess.end(EndIdle)
		_ = sess.conn.Close()
	})
	defer sess.idle.Stop()

	done := make(chan struct{})
	go sess.watchForced(done)

	err := sess.pump(s.ctx)
	close(done)

	reason := EndError
	if err == nil || isClosedErr(err) {
		reason = EndClientClosed
	}
	reason = sess.reason(reason)
	if reason == EndError {
		sess.logger.Warn("Stream failed", zap.Error(err))
	}

	_ = sess.conn.Close()
	sess.teardown(s.mixer, s.cfg.CloseTimeout)

	final := sess.stats()
	ended := time.Now()
	final.Live = false
	final.EndedAt = &ended
	final.EndReason = reason

	s.mu.Lock()
	delete(s.sessions, sess.stream.ID)
	s.mu.Unlock()
	s.history.Add(final)

	sess.logger.Info("Stream disconnected",
		zap.String("reason", reason),
		zap.Uint64("received_bytes", final.Received),
		zap.Uint64("delivered_frames", final.Delivered))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, ok := s.Stats(r.PathValue("id"))
	if !ok {
		http.Error(w, ErrStreamNotFound.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type volumeRequest struct {
	Volume *float32 `json:"volume"`
}

func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request) {
	var req volumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Volume == nil || *req.Volume < 0 {
		http.Error(w, "body must be {\"volume\": <non-negative number>}", http.StatusBadRequest)
		return
	}

	stats, err := s.SetVolume(r.PathValue("id"), *req.Volume)
	switch {
	case errors.Is(err, ErrStreamNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusOK, stats)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
