package buildio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"vawter.tech/stopper"
)

// TransferResult describes a completed transfer setup. It is returned as
// soon as the final response headers are known; the body streams through
// the Source returned alongside it.
type TransferResult struct {
	// URL is the URL that was requested
	URL string
	// FinalURL is the URL of the final response after redirects
	FinalURL string
	// ImmutableURL is the target of a Link header with rel="immutable" seen
	// anywhere in the redirect chain, if any
	ImmutableURL string
	// Status is the final HTTP status, or 0 for file URLs
	Status int
	// Headers are the final response headers
	Headers http.Header
	// ContentLength is the encoded body length, or -1 if unknown
	ContentLength int64
	// Hops are the redirects followed, in order
	Hops []RedirectHop
}

// TransferRequest is a single retrieval
type TransferRequest struct {
	// URL is an http, https or file URL
	URL string
	// MaxRedirects overrides the engine's hop budget when positive. A
	// negative value forbids redirects.
	MaxRedirects int
}

// Option configures an Engine
type Option func(*Engine)

// WithMaxRedirects sets the default redirect hop budget
func WithMaxRedirects(n int) Option {
	return func(e *Engine) {
		e.maxRedirects = n
	}
}

// WithBufferSize sets the capacity of each transfer's buffer
func WithBufferSize(size int) Option {
	return func(e *Engine) {
		if size > 0 {
			e.bufferSize = size
		}
	}
}

// WithImmutableLinkPolicy selects which immutable link wins in a chain
func WithImmutableLinkPolicy(p ImmutableLinkPolicy) Option {
	return func(e *Engine) {
		e.linkPolicy = p
	}
}

// WithConnectTimeout sets the timeout for establishing connections
func WithConnectTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.connectTimeout = d
	}
}

// WithStallTimeout sets how long a transfer may go without receiving data.
// Zero disables the check.
func WithStallTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.stallTimeout = d
	}
}

// WithHTTPClient uses a copy of c for requests. Its redirect policy is
// replaced; the engine follows redirects itself.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) {
		e.baseClient = c
	}
}

// WithUserAgent sets the User-Agent header
func WithUserAgent(ua string) Option {
	return func(e *Engine) {
		e.userAgent = ua
	}
}

// WithLogger sets the logger for transfer events
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithDecoder registers a decoder for a content coding name, replacing any
// existing one
func WithDecoder(name string, fn DecoderFunc) Option {
	return func(e *Engine) {
		e.decoders[strings.ToLower(name)] = fn
	}
}

// Engine retrieves URLs as byte streams. Each transfer gets its own worker
// and bounded buffer, so a slow consumer only ever delays its own transfer.
// An Engine is safe for concurrent use.
type Engine struct {
	client         *http.Client
	baseClient     *http.Client
	maxRedirects   int
	bufferSize     int
	linkPolicy     ImmutableLinkPolicy
	userAgent      string
	connectTimeout time.Duration
	stallTimeout   time.Duration
	decoders       map[string]DecoderFunc
	acceptEncoding string
	logger         *slog.Logger

	stopper *stopper.Context

	mu     sync.Mutex
	active map[*transfer]struct{}
	closed bool
}

// NewEngine creates a transfer engine
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		maxRedirects:   DefaultMaxRedirects,
		bufferSize:     DefaultBufferSize,
		linkPolicy:     FirstImmutableLink,
		userAgent:      DefaultUserAgent,
		connectTimeout: DefaultConnectTimeout,
		stallTimeout:   DefaultStallTimeout,
		decoders:       defaultDecoders(),
		active:         make(map[*transfer]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = Logger()
	}
	e.acceptEncoding = strings.Join(decoderNames(e.decoders), ", ")
	e.client = e.newClient()
	e.stopper = stopper.WithContext(context.Background())
	return e
}

func (e *Engine) newClient() *http.Client {
	noFollow := func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	if e.baseClient != nil {
		c := *e.baseClient
		c.CheckRedirect = noFollow
		return &c
	}
	dialer := &net.Dialer{
		Timeout:   e.connectTimeout,
		KeepAlive: 30 * time.Second,
	}
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			ForceAttemptHTTP2:     true,
			TLSHandshakeTimeout:   e.connectTimeout,
			ResponseHeaderTimeout: e.stallTimeout,
			MaxIdleConnsPerHost:   8,
			IdleConnTimeout:       90 * time.Second,
			DisableCompression:    true,
		},
		CheckRedirect: noFollow,
	}
}

// Download retrieves url with the engine's defaults. As with
// DownloadRequest, ctx must outlive the returned Source.
func (e *Engine) Download(ctx context.Context, url string) (*TransferResult, Source, error) {
	return e.DownloadRequest(ctx, TransferRequest{URL: url})
}

// DownloadRequest starts a transfer and returns once the final response
// headers are known. Failures up to that point are returned here as a
// *TransferError of kind KindSetup or KindRedirectLimit. Failures while the
// body streams are returned by the Source's Read as KindDeferred.
//
// ctx governs the whole transfer, body included: cancelling it after
// DownloadRequest returns fails the Source at its next read. Keep ctx alive
// until the Source is drained.
func (e *Engine) DownloadRequest(ctx context.Context, req TransferRequest) (*TransferResult, Source, error) {
	if err := CheckInterrupt(ctx); err != nil {
		return nil, nil, e.setupFailure(req.URL, 0, err)
	}

	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, nil, e.setupFailure(req.URL, 0, err)
	}
	switch {
	case u.Scheme == "file":
		return e.downloadFile(ctx, req.URL, u)
	case !isHTTPScheme(u):
		return nil, nil, e.setupFailure(req.URL, 0, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme))
	}

	t, err := e.register(ctx, req.URL)
	if err != nil {
		return nil, nil, e.setupFailure(req.URL, 0, err)
	}

	budget := e.maxRedirects
	switch {
	case req.MaxRedirects > 0:
		budget = req.MaxRedirects
	case req.MaxRedirects < 0:
		budget = 0
	}

	resp, result, err := e.follow(t.ctx, http.MethodGet, u, budget)
	if err != nil {
		e.finish(t)
		return result, nil, e.failure(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e.finish(t)
		return result, nil, e.setupFailure(result.FinalURL, resp.StatusCode, statusError(resp))
	}

	chain, err := resolveDecoders(e.decoders, parseCodings(resp.Header.Values("Content-Encoding")))
	if err != nil {
		_ = resp.Body.Close()
		e.finish(t)
		return result, nil, e.setupFailure(result.FinalURL, resp.StatusCode, err)
	}

	if !e.start(t, resp.Body, chain) {
		return result, nil, e.setupFailure(req.URL, 0, ErrEngineClosed)
	}
	return result, t.source(), nil
}

// follow issues method against u, following redirects until a non-redirect
// response arrives or the budget runs out. The caller owns the returned
// response body.
func (e *Engine) follow(ctx context.Context, method string, u *url.URL, budget int) (*http.Response, *TransferResult, error) {
	result := &TransferResult{URL: u.String(), ContentLength: -1}
	current := u
	for {
		req, err := http.NewRequestWithContext(ctx, method, current.String(), nil)
		if err != nil {
			return nil, result, &TransferError{Kind: KindSetup, URL: current.String(), Err: err}
		}
		req.Header.Set("User-Agent", e.userAgent)
		req.Header.Set("Accept-Encoding", e.acceptEncoding)

		resp, err := e.client.Do(req)
		if err != nil {
			if cause := context.Cause(ctx); cause != nil {
				err = fmt.Errorf("%w: %w", cause, err)
			}
			return nil, result, &TransferError{Kind: KindSetup, URL: current.String(), Err: err}
		}

		e.linkPolicy.apply(result, resp.Header, current)
		result.FinalURL = current.String()
		result.Status = resp.StatusCode
		result.Headers = resp.Header
		result.ContentLength = resp.ContentLength

		if !followsRedirect(resp.StatusCode) {
			return resp, result, nil
		}

		location := resp.Header.Get("Location")
		discardBody(resp)
		if location == "" {
			return nil, result, &TransferError{
				Kind:   KindSetup,
				URL:    current.String(),
				Status: resp.StatusCode,
				Err:    errors.New("redirect without a Location header"),
			}
		}
		next, err := current.Parse(location)
		if err != nil {
			return nil, result, &TransferError{Kind: KindSetup, URL: current.String(), Status: resp.StatusCode, Err: err}
		}
		if !isHTTPScheme(next) {
			return nil, result, &TransferError{
				Kind:   KindSetup,
				URL:    next.String(),
				Status: resp.StatusCode,
				Err:    fmt.Errorf("%w: redirect to %q", ErrUnsupportedScheme, next.Scheme),
			}
		}
		if len(result.Hops) >= budget {
			return nil, result, &TransferError{
				Kind:   KindRedirectLimit,
				URL:    result.URL,
				Status: resp.StatusCode,
				Err:    fmt.Errorf("%w: more than %d", ErrRedirectLimitExceeded, budget),
			}
		}

		result.Hops = append(result.Hops, RedirectHop{
			StatusCode: resp.StatusCode,
			Location:   next.String(),
			Headers:    resp.Header,
		})
		transferRedirects.Inc()
		e.logger.Debug("following redirect", "from", current.String(), "to", next.String(), "status", resp.StatusCode)
		current = next
	}
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return fmt.Errorf("HTTP error %s", resp.Status)
	}
	return fmt.Errorf("HTTP error %s: %s", resp.Status, msg)
}

// Exists reports whether url names a retrievable resource. Not found and
// forbidden resources are reported as false; other failures as errors.
func (e *Engine) Exists(ctx context.Context, rawURL string) (bool, error) {
	if err := CheckInterrupt(ctx); err != nil {
		return false, e.setupFailure(rawURL, 0, err)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, e.setupFailure(rawURL, 0, err)
	}
	switch {
	case u.Scheme == "file":
		return fileExists(rawURL, u)
	case !isHTTPScheme(u):
		return false, e.setupFailure(rawURL, 0, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme))
	}

	ictx, cancel := withInterrupt(ctx)
	defer cancel()
	resp, _, err := e.follow(ictx, http.MethodHead, u, e.maxRedirects)
	if err != nil {
		return false, e.failure(err)
	}
	_ = resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		return true, nil
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusGone, resp.StatusCode == http.StatusForbidden:
		return false, nil
	default:
		return false, e.setupFailure(rawURL, resp.StatusCode, fmt.Errorf("HTTP error %s", resp.Status))
	}
}

// withInterrupt derives a context that is cancelled with ErrInterrupted
// when the process-wide interrupt flag is raised
func withInterrupt(ctx context.Context) (context.Context, context.CancelFunc) {
	ictx, cancel := context.WithCancelCause(ctx)
	go func() {
		select {
		case <-interrupted():
			cancel(ErrInterrupted)
		case <-ictx.Done():
		}
	}()
	return ictx, func() { cancel(context.Canceled) }
}

func (e *Engine) setupFailure(url string, status int, err error) error {
	return e.failure(&TransferError{Kind: KindSetup, URL: url, Status: status, Err: err})
}

func (e *Engine) failure(err error) error {
	var te *TransferError
	if errors.As(err, &te) {
		recordTransferFailure(te)
		e.logger.Debug("transfer failed", "url", te.URL, "kind", te.Kind.String(), "error", te.Err)
	}
	return err
}

// register creates a transfer and tracks it until finish
func (e *Engine) register(ctx context.Context, url string) (*transfer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrEngineClosed
	}
	tctx, cancel := context.WithCancelCause(ctx)
	t := &transfer{
		url:    url,
		ctx:    tctx,
		cancel: cancel,
		buf:    newTransferBuffer(e.bufferSize),
	}
	e.active[t] = struct{}{}
	transfersActive.Inc()
	go t.watchInterrupt()
	return t, nil
}

// finish stops tracking t
func (e *Engine) finish(t *transfer) {
	e.mu.Lock()
	if _, ok := e.active[t]; ok {
		delete(e.active, t)
		transfersActive.Dec()
	}
	e.mu.Unlock()
	t.stopStall()
	t.cancel(context.Canceled)
}

// start hands body to a worker. It returns false if the engine was closed
// since t was registered.
func (e *Engine) start(t *transfer, body io.ReadCloser, chain decoderChain) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		_ = body.Close()
		if _, ok := e.active[t]; ok {
			delete(e.active, t)
			transfersActive.Dec()
		}
		t.cancel(ErrEngineClosed)
		return false
	}

	if e.stallTimeout > 0 {
		t.stallTimeout = e.stallTimeout
		t.stall = time.AfterFunc(e.stallTimeout, func() {
			t.cancel(ErrStalled)
		})
	}

	t.streaming.Store(true)
	accepted := e.stopper.Go(func(sctx *stopper.Context) error {
		defer e.finish(t)
		defer func() { _ = body.Close() }()
		t.stream(sctx, body, chain)
		return nil
	})
	if !accepted {
		_ = body.Close()
		t.fail(ErrEngineClosed)
		if _, ok := e.active[t]; ok {
			delete(e.active, t)
			transfersActive.Dec()
		}
		t.stopStall()
		t.cancel(ErrEngineClosed)
		return false
	}
	return true
}

// Close aborts every active transfer and stops the workers. Readers of
// aborted transfers get a deferred failure wrapping ErrEngineClosed. Close
// waits a bounded time for workers to exit.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	active := make([]*transfer, 0, len(e.active))
	for t := range e.active {
		active = append(active, t)
	}
	e.mu.Unlock()

	for _, t := range active {
		t.abort(&TransferError{Kind: KindDeferred, URL: t.url, Err: ErrEngineClosed})
	}

	e.stopper.Stop(DefaultEngineStopGrace)

	done := make(chan error, 1)
	go func() {
		done <- e.stopper.Wait()
	}()

	timer := time.NewTimer(DefaultEngineCloseTimeout)
	defer timer.Stop()
	select {
	case err := <-done:
		e.client.CloseIdleConnections()
		return err
	case <-timer.C:
		return fmt.Errorf("%w: waiting for %d transfer workers", ErrTimeout, len(active))
	}
}

// transfer is the state shared by one worker and one consumer
type transfer struct {
	url    string
	ctx    context.Context
	cancel context.CancelCauseFunc
	buf    *transferBuffer

	stall        *time.Timer
	stallTimeout time.Duration

	// streaming is set once the body has been handed to a worker
	streaming atomic.Bool
}

// watchInterrupt ends the transfer when the process-wide interrupt flag is
// raised. While headers are pending the request is cancelled and Download
// fails; once the body streams, a blocked reader gets a deferred failure.
// The watch ends with the transfer's context.
func (t *transfer) watchInterrupt() {
	select {
	case <-interrupted():
	case <-t.ctx.Done():
		return
	}
	if !t.streaming.Load() {
		t.cancel(ErrInterrupted)
		return
	}
	t.abort(&TransferError{Kind: KindDeferred, URL: t.url, Err: ErrInterrupted})
}

func (t *transfer) source() Source {
	return &transferSource{t: t}
}

// stream copies the decoded body into the buffer until the body ends, the
// consumer aborts, or the engine stops.
func (t *transfer) stream(sctx *stopper.Context, body io.Reader, chain decoderChain) {
	r, closeDecoders, err := chain.wrap(body)
	if err != nil {
		t.fail(err)
		return
	}
	defer closeDecoders()

	chunk := make([]byte, 32*1024)
	for {
		if sctx.IsStopping() {
			t.fail(ErrEngineClosed)
			return
		}
		if t.ctx.Err() != nil {
			t.fail(context.Cause(t.ctx))
			return
		}

		n, rerr := r.Read(chunk)
		t.stopStall()
		if n > 0 {
			if _, werr := t.buf.Write(chunk[:n]); werr != nil {
				return
			}
			transferBytes.Add(float64(n))
		}
		if errors.Is(rerr, io.EOF) {
			t.buf.CloseWithError(nil)
			return
		}
		if rerr != nil {
			if t.ctx.Err() != nil {
				rerr = fmt.Errorf("%w: %w", context.Cause(t.ctx), rerr)
			}
			t.fail(rerr)
			return
		}
		t.resetStall()
	}
}

// fail ends the stream with a deferred failure. A stream the consumer has
// already abandoned is left alone.
func (t *transfer) fail(err error) {
	if t.buf.Aborted() {
		return
	}
	var te *TransferError
	if !errors.As(err, &te) {
		te = &TransferError{Kind: KindDeferred, URL: t.url, Err: err}
	}
	recordTransferFailure(te)
	t.buf.CloseWithError(te)
}

// abort stops the worker on behalf of the consumer or the engine
func (t *transfer) abort(cause error) {
	t.cancel(cause)
	t.buf.Abort(cause)
}

func (t *transfer) stopStall() {
	if t.stall != nil {
		t.stall.Stop()
	}
}

func (t *transfer) resetStall() {
	if t.stall != nil {
		t.stall.Reset(t.stallTimeout)
	}
}

// transferSource is the consumer side of a transfer
type transferSource struct {
	abortGuard
	t *transfer
}

// Read implements Source
func (s *transferSource) Read(p []byte) (int, error) {
	s.checkReadable(s.t.url)
	return s.t.buf.Read(p)
}

// Abort stops the transfer because the consumer gave up mid-stream
func (s *transferSource) Abort(cause error) {
	s.markAborted(cause)
	s.t.abort(cause)
}

// Close stops the transfer. Later reads return ErrSourceClosed.
func (s *transferSource) Close() error {
	s.t.abort(ErrSourceClosed)
	return nil
}
