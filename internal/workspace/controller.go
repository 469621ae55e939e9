// Package workspace keeps the annotation list of one displayed article and
// the highlights drawn over it consistent while backend calls are in flight.
package workspace

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"annotator/internal/domain"
	"annotator/internal/overlay"
)

// Backend is the annotation service the controller talks to.
type Backend interface {
	ListAnnotations(ctx context.Context, articleID string) ([]domain.Annotation, error)
	CreateAnnotation(ctx context.Context, input domain.NewAnnotation) (domain.Annotation, error)
	UpdateAnnotation(ctx context.Context, id string, update domain.AnnotationUpdate) (domain.Annotation, error)
	DeleteAnnotation(ctx context.Context, id string) error
	DeleteArticleAnnotations(ctx context.Context, articleID string) error
	AnalyzeArticle(ctx context.Context, articleID string) ([]domain.Annotation, error)
	CreateComment(ctx context.Context, input domain.NewComment) (domain.Comment, error)
	DeleteComment(ctx context.Context, annotationID, commentID string) error
}

type State int

const (
	Idle State = iota
	Loading
	Loaded
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	default:
		return "unknown"
	}
}

type Options struct {
	Palette  overlay.Palette
	Notifier Notifier
	Logger   zerolog.Logger
	// User is recorded on created annotations and comments.
	User string
	Now  func() time.Time
	// OnRender receives every re-rendered view of the surface. Views and
	// notices are delivered in order once the controller's lock is
	// released, so listeners may read the controller.
	OnRender func(overlay.View)
}

// ticket identifies the state a backend call was issued against.
type ticket struct {
	articleID string
	revision  int64
	epoch     uint64
	edits     int
}

// event is a view or notice waiting to be delivered outside the lock.
type event struct {
	view   *overlay.View
	notice *Notice
}

// Controller owns one Surface and the annotation list shown over it. All
// methods are safe for concurrent use.
type Controller struct {
	backend  Backend
	palette  overlay.Palette
	notifier Notifier
	log      zerolog.Logger
	user     string
	now      func() time.Time

	mu          sync.Mutex
	surface     *overlay.Surface
	state       State
	article     domain.Article
	annotations []domain.Annotation
	pending     *overlay.Selection
	category    string
	subcategory string
	// epoch advances with every list load and every confirmed mutation so
	// a load never overwrites newer state.
	epoch uint64
	// edits holds the in-place edits applied since the article was
	// displayed.
	edits       overlay.Mapping
	scope       context.Context
	cancelScope context.CancelFunc

	onRender func(overlay.View)
	outbox   []event
	emitting bool
}

func New(backend Backend, opts Options) *Controller {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Palette.IsZero() {
		opts.Palette = overlay.DefaultPalette()
	}
	if opts.User == "" {
		opts.User = "anonymous"
	}
	scope, cancel := context.WithCancel(context.Background())
	c := &Controller{
		backend:     backend,
		palette:     opts.Palette,
		notifier:    opts.Notifier,
		log:         opts.Logger.With().Str("component", "workspace").Logger(),
		user:        opts.User,
		now:         opts.Now,
		surface:     overlay.NewSurface(),
		scope:       scope,
		cancelScope: cancel,
	}
	c.surface.OnSelect(c.setPending)
	if opts.OnRender != nil {
		c.onRender = opts.OnRender
		c.surface.OnRender(c.queueView)
	}
	return c
}

// Close cancels every in-flight backend call.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.unlock()
	c.cancelScope()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Article returns the displayed article.
func (c *Controller) Article() (domain.Article, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.article, c.state != Idle
}

// Annotations returns a copy of the annotation list.
func (c *Controller) Annotations() []domain.Annotation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Annotation, 0, len(c.annotations))
	for _, a := range c.annotations {
		out = append(out, a.Clone())
	}
	return out
}

func (c *Controller) Decorations() []overlay.Decoration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.surface.Decorations()
}

// Selection returns the pending selection, if any.
func (c *Controller) Selection() (overlay.Selection, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return overlay.Selection{}, false
	}
	return *c.pending, true
}

// Choices returns the chosen category and subcategory.
func (c *Controller) Choices() (category, subcategory string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.category, c.subcategory
}

func (c *Controller) View() overlay.View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.surface.Render()
}

// ReportSelection forwards a user selection over the displayed text.
func (c *Controller) ReportSelection(start, end int) {
	c.mu.Lock()
	defer c.unlock()
	c.surface.ReportSelection(start, end)
}

// HandleSelection records sel as the pending selection. Selections made
// against an earlier revision of the document are ignored.
func (c *Controller) HandleSelection(sel overlay.Selection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.surface.Loaded() || sel.Revision != c.surface.Revision() || sel.Start == sel.End {
		return
	}
	c.setPending(sel)
}

// setPending is the surface selection listener; callers hold mu.
func (c *Controller) setPending(sel overlay.Selection) {
	c.pending = &sel
}

// ChooseCategory sets the category and resets the subcategory.
func (c *Controller) ChooseCategory(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.category = strings.TrimSpace(id)
	c.subcategory = ""
}

func (c *Controller) ChooseSubcategory(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subcategory = strings.TrimSpace(name)
}

// issue captures the current ticket and a context that is cancelled with
// either ctx or the current article scope. Callers hold mu.
func (c *Controller) issue(ctx context.Context) (ticket, context.Context, context.CancelFunc) {
	t := ticket{articleID: c.article.ID, revision: c.surface.Revision(), epoch: c.epoch, edits: len(c.edits)}
	callCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.scope, cancel)
	return t, callCtx, func() {
		stop()
		cancel()
	}
}

// current reports whether a mutation issued under t still applies: same
// article and same document revision. Callers hold mu.
func (c *Controller) current(t ticket) bool {
	return c.state != Idle && t.articleID == c.article.ID && t.revision == c.surface.Revision()
}

// currentLoad additionally requires that no newer load was started.
func (c *Controller) currentLoad(t ticket) bool {
	return c.current(t) && t.epoch == c.epoch
}

// confirmed records a mutation accepted by the backend. A list load still
// in flight predates it and will be discarded. Callers hold mu.
func (c *Controller) confirmed() {
	c.epoch++
	if c.state == Loading {
		c.state = Loaded
	}
}

// stale logs and returns ErrStale. Callers hold mu.
func (c *Controller) stale(op string, t ticket) error {
	c.log.Debug().
		Str("op", op).
		Str("article_id", t.articleID).
		Int64("revision", t.revision).
		Uint64("epoch", t.epoch).
		Msg("discarding stale response")
	return ErrStale
}

// fail reports err through the notifier and returns it. Callers hold mu.
func (c *Controller) fail(op string, err error) error {
	kind := classify(err)
	c.log.Warn().Err(err).Str("op", op).Str("kind", string(kind)).Msg("workspace operation failed")
	if c.notifier != nil {
		c.outbox = append(c.outbox, event{notice: &Notice{Kind: kind, Op: op, Message: err.Error()}})
	}
	return err
}

// queueView is the surface render listener; callers hold mu.
func (c *Controller) queueView(v overlay.View) {
	c.outbox = append(c.outbox, event{view: &v})
}

// unlock releases mu and delivers queued views and notices. Only one
// goroutine delivers at a time; events queued meanwhile, including by
// listeners themselves, are picked up by that goroutine in order.
func (c *Controller) unlock() {
	if c.emitting || len(c.outbox) == 0 {
		c.mu.Unlock()
		return
	}
	c.emitting = true
	for len(c.outbox) > 0 {
		batch := c.outbox
		c.outbox = nil
		c.mu.Unlock()
		for _, ev := range batch {
			c.emit(ev)
		}
		c.mu.Lock()
	}
	c.emitting = false
	c.mu.Unlock()
}

func (c *Controller) emit(ev event) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Msg("workspace listener panicked")
		}
	}()
	switch {
	case ev.view != nil:
		c.onRender(*ev.view)
	case ev.notice != nil:
		c.notifier.Notify(*ev.notice)
	}
}

func (c *Controller) indexOf(id string) int {
	for i, a := range c.annotations {
		if a.ID == id {
			return i
		}
	}
	return -1
}

// place resolves a over the displayed text. Stored offsets are read in the
// coordinates of the text when the call that returned a was issued, then
// moved through every edit applied since. Callers hold mu.
func (c *Controller) place(a domain.Annotation, since int) []overlay.Range {
	ranges := Resolve(c.surface.Read(), a)
	if _, ok := a.Anchor().(domain.Positioned); !ok || since >= len(c.edits) {
		return ranges
	}
	later := c.edits[since:]
	out := ranges[:0]
	for _, r := range ranges {
		start, end := later.Map(r.Start, 1), later.Map(r.End, -1)
		if start < end {
			out = append(out, overlay.Range{Start: start, End: end})
		}
	}
	return out
}

// highlight draws every range the annotation resolves to. Callers hold mu.
func (c *Controller) highlight(a domain.Annotation, since int) {
	color := c.palette.ColorFor(a.Category)
	for _, r := range c.place(a, since) {
		c.surface.AddHighlight(r.Start, r.End, color, a.ID)
	}
}

// track appends a, or replaces the tracked copy when the id is already
// present, and redraws it. Callers hold mu.
func (c *Controller) track(a domain.Annotation, since int) {
	if i := c.indexOf(a.ID); i >= 0 {
		c.annotations[i] = a
		c.surface.RemoveHighlight(a.ID)
	} else {
		c.annotations = append(c.annotations, a)
	}
	c.highlight(a, since)
}
