package view

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mchurichi/logdeck/pkg/classify"
	"github.com/mchurichi/logdeck/pkg/export"
	"github.com/mchurichi/logdeck/pkg/metrics"
	"github.com/mchurichi/logdeck/pkg/page"
	"github.com/mchurichi/logdeck/pkg/parser"
	"github.com/mchurichi/logdeck/pkg/query"
	"github.com/mchurichi/logdeck/pkg/record"
	"github.com/mchurichi/logdeck/pkg/source"
	"github.com/mchurichi/logdeck/pkg/stats"
)

// ErrClosed is returned by operations on a closed view
var ErrClosed = errors.New("view closed")

// FallbackBanner is shown while sample data replaces unreachable logs
const FallbackBanner = "Failed to load logs, showing sample data"

// Options configures a View
type Options struct {
	PageSize int
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	// Now is the clock used for time windows, samples and exports
	Now func() time.Time
}

// View owns the record set of one domain and everything derived from it
type View struct {
	classifier *classify.Classifier
	source     source.Source
	detector   *parser.Detector
	logger     *slog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	cursor   *page.Cursor
	pageSize int

	mu          sync.Mutex
	records     []*record.LogRecord
	criteria    query.Criteria
	banner      string
	refreshedAt time.Time
	loading     int
	visible     bool
	clients     int
	seq         uint64 // last issued request
	applied     uint64 // request whose result is on display
	closed      bool
	subs        map[int]chan struct{}
	nextSub     int
}

// New creates a view of src classified by classifier
func New(classifier *classify.Classifier, src source.Source, opts Options) *View {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	cursor := page.NewCursor(opts.PageSize)
	ctx, cancel := context.WithCancel(context.Background())
	return &View{
		classifier: classifier,
		source:     src,
		detector:   parser.NewDetector(),
		logger:     opts.Logger.With("domain", classifier.Domain()),
		metrics:    opts.Metrics,
		now:        opts.Now,
		ctx:        ctx,
		cancel:     cancel,
		cursor:     cursor,
		pageSize:   cursor.PageSize(),
		criteria:   query.DefaultCriteria(),
		subs:       make(map[int]chan struct{}),
	}
}

// Domain returns the view's domain name
func (v *View) Domain() string {
	return v.classifier.Domain()
}

// Classifier returns the classifier of the view's domain
func (v *View) Classifier() *classify.Classifier {
	return v.classifier
}

// Done is closed when the view is closed
func (v *View) Done() <-chan struct{} {
	return v.ctx.Done()
}

// Refresh fetches the domain's logs and replaces the record set. Several
// refreshes may run at once; only a result newer than the one on display
// is applied. A failed or unrecognized fetch installs the sample records
// and sets the fallback banner; it is not reported as an error.
func (v *View) Refresh(ctx context.Context) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	v.seq++
	seq := v.seq
	v.loading++
	v.mu.Unlock()

	// Closing the view cancels the fetch as well
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(v.ctx, cancel)
	defer stop()

	records, banner, err := v.load(ctx)

	v.mu.Lock()
	defer v.mu.Unlock()
	v.loading--

	if v.closed {
		v.logger.Debug("Dropping refresh result of closed view", "seq", seq)
		return ErrClosed
	}
	if err != nil {
		return err
	}
	if seq < v.applied {
		v.logger.Debug("Dropping stale refresh result", "seq", seq, "applied", v.applied)
		v.metrics.Refreshed(v.Domain(), metrics.StatusStale, len(records))
		return nil
	}

	v.records = records
	v.applied = seq
	v.banner = banner
	v.refreshedAt = v.now()

	status := metrics.StatusOK
	if banner != "" {
		status = metrics.StatusFallback
	}
	v.metrics.Refreshed(v.Domain(), status, len(records))
	v.notifyLocked()
	return nil
}

// load fetches and decodes one batch. The error is non-nil only when the
// context was cancelled; every other failure falls back to samples.
func (v *View) load(ctx context.Context) ([]*record.LogRecord, string, error) {
	start := time.Now()
	body, err := v.source.Fetch(ctx)
	v.metrics.ObserveFetch(v.Domain(), time.Since(start))

	if err == nil {
		records, derr := v.detector.DecodeWithEnvelope(body, v.source.Envelope())
		if derr == nil {
			return records, "", nil
		}
		err = derr
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, "", fmt.Errorf("refresh %s: %w", v.Domain(), ctxErr)
	}

	v.logger.Warn("Failed to load logs, using sample data", "error", err)
	samples, serr := v.detector.Decode(v.classifier.Taxonomy().SamplePayload(v.now()))
	if serr != nil {
		v.logger.Error("Failed to decode sample data", "error", serr)
		samples = nil
	}
	return samples, FallbackBanner, nil
}

// Loading reports whether a refresh is in flight
func (v *View) Loading() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loading > 0
}

// Visible reports whether anyone is looking at the view
func (v *View) Visible() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.visible || v.clients > 0
}

// SetVisible marks the view as shown or hidden
func (v *View) SetVisible(visible bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.visible = visible
}

// Attach registers a live client; the view stays visible until the
// returned release func is called
func (v *View) Attach() (release func()) {
	v.mu.Lock()
	v.clients++
	v.mu.Unlock()
	v.metrics.ClientConnected(v.Domain(), 1)

	var once sync.Once
	return func() {
		once.Do(func() {
			v.mu.Lock()
			v.clients--
			v.mu.Unlock()
			v.metrics.ClientConnected(v.Domain(), -1)
		})
	}
}

// Criteria returns the active filter selections
func (v *View) Criteria() query.Criteria {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.criteria
}

// ValidateCriteria normalizes c and checks it against the view's domain
func (v *View) ValidateCriteria(c query.Criteria) (query.Criteria, error) {
	c = c.Normalize()
	if err := c.Validate(); err != nil {
		return c, err
	}
	if !v.classifier.HasCategory(c.Category) {
		return c, fmt.Errorf("unknown category: %s", c.Category)
	}
	return c, nil
}

// SetCriteria replaces the filter selections. Any change moves the view
// back to page 1.
func (v *View) SetCriteria(c query.Criteria) error {
	c, err := v.ValidateCriteria(c)
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrClosed
	}
	if c != v.criteria {
		v.criteria = c
		v.cursor.Reset()
		v.notifyLocked()
	}
	return nil
}

// SetPage moves to page n. Pages past the end are clamped when the
// snapshot is built.
func (v *View) SetPage(n int) {
	v.cursor.SetPage(n)
	v.notify()
}

// SetPageSize changes the page size and moves back to page 1
func (v *View) SetPageSize(n int) {
	v.cursor.SetPageSize(n)
	v.notify()
}

// DismissBanner hides the fallback banner
func (v *View) DismissBanner() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.banner != "" {
		v.banner = ""
		v.notifyLocked()
	}
}

// Entry is a record on a page with its first-match category
type Entry struct {
	*record.LogRecord
	Category string `json:"category"`
}

// Snapshot is the full state a client renders
type Snapshot struct {
	Domain      string                  `json:"domain"`
	Title       string                  `json:"title"`
	Criteria    query.Criteria          `json:"criteria"`
	Stats       stats.Stats             `json:"stats"`
	Page        page.Result[Entry]      `json:"page"`
	Categories  []classify.CategoryInfo `json:"categories"`
	Banner      string                  `json:"banner,omitempty"`
	Loading     bool                    `json:"loading"`
	RefreshedAt time.Time               `json:"refreshedAt"`
}

// Selection is one reader's filter selections and page position over the
// shared record set. Readers with their own Selection never see each
// other's choices.
type Selection struct {
	Criteria query.Criteria
	Page     int
	PageSize int
}

// DefaultSelection is the selection a new reader starts with
func (v *View) DefaultSelection() Selection {
	return Selection{Criteria: query.DefaultCriteria(), Page: 1, PageSize: v.pageSize}
}

// filtered applies c to the record set
func (v *View) filtered(c query.Criteria) ([]*record.LogRecord, Snapshot) {
	v.mu.Lock()
	records := v.records
	snap := Snapshot{
		Domain:      v.Domain(),
		Title:       v.classifier.Taxonomy().Title,
		Criteria:    c,
		Categories:  v.classifier.Categories(),
		Banner:      v.banner,
		Loading:     v.loading > 0,
		RefreshedAt: v.refreshedAt,
	}
	v.mu.Unlock()

	return query.Apply(records, c, v.classifier, v.now()), snap
}

// Snapshot filters, summarizes and pages the current record set with the
// view's own selections
func (v *View) Snapshot() Snapshot {
	snap := v.Render(Selection{
		Criteria: v.Criteria(),
		Page:     v.cursor.Page(),
		PageSize: v.cursor.PageSize(),
	})
	if snap.Page.Page != v.cursor.Page() {
		v.cursor.SetPage(snap.Page.Page)
	}
	return snap
}

// Render builds the snapshot sel sees. The view's own selections are left
// untouched; sel.Criteria must have passed ValidateCriteria.
func (v *View) Render(sel Selection) Snapshot {
	records, snap := v.filtered(sel.Criteria)

	snap.Stats = stats.Summarize(records, v.classifier)

	res := page.Paginate(records, sel.Page, sel.PageSize)

	entries := make([]Entry, 0, len(res.Items))
	for _, rec := range res.Items {
		entries = append(entries, Entry{LogRecord: rec, Category: v.classifier.Classify(rec)})
	}
	snap.Page = page.Result[Entry]{
		Items:      entries,
		Page:       res.Page,
		PageSize:   res.PageSize,
		TotalPages: res.TotalPages,
		TotalItems: res.TotalItems,
	}
	return snap
}

// Export serializes the record set filtered by the view's own selections
func (v *View) Export() (export.Artifact, error) {
	return v.ExportWith(v.Criteria())
}

// ExportWith serializes the record set filtered by c
func (v *View) ExportWith(c query.Criteria) (export.Artifact, error) {
	records, _ := v.filtered(c)
	a, err := export.Export(records, v.classifier, v.now())
	v.metrics.Exported(v.Domain(), err)
	return a, err
}

// Subscribe returns a channel that receives a value after every change.
// Notifications coalesce; the channel is closed when the view closes.
func (v *View) Subscribe() (<-chan struct{}, func()) {
	v.mu.Lock()
	defer v.mu.Unlock()

	ch := make(chan struct{}, 1)
	if v.closed {
		close(ch)
		return ch, func() {}
	}

	id := v.nextSub
	v.nextSub++
	v.subs[id] = ch

	return ch, func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		if c, ok := v.subs[id]; ok {
			delete(v.subs, id)
			close(c)
		}
	}
}

func (v *View) notify() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.notifyLocked()
}

func (v *View) notifyLocked() {
	for _, ch := range v.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Close stops the view. In-flight refreshes are cancelled and their
// results dropped.
func (v *View) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrClosed
	}
	v.closed = true
	v.cancel()
	for id, ch := range v.subs {
		delete(v.subs, id)
		close(ch)
	}
	return nil
}
