package workspace

import (
	"context"
	"strings"

	"annotator/internal/domain"
	"annotator/internal/overlay"
)

// SelectArticle displays article and loads its annotations. The previous
// article's in-flight calls are cancelled and their responses discarded. If
// the list cannot be fetched the article stays displayed without highlights.
func (c *Controller) SelectArticle(ctx context.Context, article domain.Article) error {
	c.mu.Lock()
	c.cancelScope()
	c.scope, c.cancelScope = context.WithCancel(context.Background())
	c.article = article
	c.annotations = nil
	c.pending = nil
	c.category, c.subcategory = "", ""
	c.state = Loading
	c.surface.Replace(article.Text)
	c.edits = nil
	c.epoch++
	t, callCtx, done := c.issue(ctx)
	c.unlock()
	defer done()

	c.log.Debug().Str("article_id", article.ID).Int64("revision", t.revision).Msg("loading annotations")
	list, err := c.backend.ListAnnotations(callCtx, article.ID)

	c.mu.Lock()
	defer c.unlock()
	if !c.currentLoad(t) {
		return c.stale("select_article", t)
	}
	c.state = Loaded
	if err != nil {
		return c.fail("select_article", err)
	}
	c.install(list, t.edits)
	return nil
}

// Reload re-fetches the annotation list of the displayed article and
// rebuilds every highlight. On failure the current list is kept.
func (c *Controller) Reload(ctx context.Context) error {
	c.mu.Lock()
	if c.state == Idle {
		c.unlock()
		return ErrNoArticle
	}
	c.epoch++
	c.state = Loading
	t, callCtx, done := c.issue(ctx)
	c.unlock()
	defer done()

	list, err := c.backend.ListAnnotations(callCtx, t.articleID)

	c.mu.Lock()
	defer c.unlock()
	if !c.currentLoad(t) {
		return c.stale("reload", t)
	}
	c.state = Loaded
	if err != nil {
		return c.fail("reload", err)
	}
	c.install(list, t.edits)
	return nil
}

// install replaces the list and rebuilds the decorations from it. Callers
// hold mu.
func (c *Controller) install(list []domain.Annotation, since int) {
	c.surface.ClearHighlights()
	c.annotations = make([]domain.Annotation, 0, len(list))
	for _, a := range list {
		c.track(a.Clone(), since)
	}
	c.log.Debug().
		Str("article_id", c.article.ID).
		Int("annotations", len(c.annotations)).
		Int("decorations", len(c.surface.Decorations())).
		Msg("annotations installed")
}

// CreateAnnotation saves the pending selection with the chosen category and
// subcategory. Missing input fails with *ValidationError before any backend
// call.
func (c *Controller) CreateAnnotation(ctx context.Context) (domain.Annotation, error) {
	c.mu.Lock()
	if verr := c.validateCreate(); verr != nil {
		defer c.unlock()
		return domain.Annotation{}, c.fail("create_annotation", verr)
	}
	sel := *c.pending
	input := domain.NewAnnotation{
		ArticleID:       c.article.ID,
		HighlightedText: sel.Text,
		StartOffset:     domain.Offset(sel.Start),
		EndOffset:       domain.Offset(sel.End),
		Category:        c.category,
		Subcategory:     c.subcategory,
		Timestamp:       c.now().UTC(),
		User:            c.user,
		ArticleMetadata: domain.MetadataOf(c.article),
	}
	t, callCtx, done := c.issue(ctx)
	c.unlock()
	defer done()

	created, err := c.backend.CreateAnnotation(callCtx, input)

	c.mu.Lock()
	defer c.unlock()
	if !c.current(t) {
		return domain.Annotation{}, c.stale("create_annotation", t)
	}
	if err != nil {
		return domain.Annotation{}, c.fail("create_annotation", err)
	}
	c.confirmed()
	created = created.Clone()
	if created.StartOffset == nil || created.EndOffset == nil {
		created.StartOffset = domain.Offset(sel.Start)
		created.EndOffset = domain.Offset(sel.End)
	}
	c.track(created, t.edits)
	if moved, ok := c.moveSelection(sel, c.edits[t.edits:]); ok && c.pending != nil && *c.pending == moved {
		c.pending = nil
	}
	c.category, c.subcategory = "", ""
	return created.Clone(), nil
}

// validateCreate checks the inputs of CreateAnnotation. Callers hold mu.
func (c *Controller) validateCreate() *ValidationError {
	switch {
	case c.state != Loaded:
		return &ValidationError{Field: "article", Message: "no article loaded"}
	case c.pending == nil:
		return &ValidationError{Field: "selection", Message: "select some text first"}
	case c.category == "":
		return &ValidationError{Field: "category", Message: "choose a category"}
	case c.subcategory == "":
		return &ValidationError{Field: "subcategory", Message: "choose a subcategory"}
	}
	return nil
}

// UpdateAnnotation edits a tracked annotation. Its highlights keep their
// current ranges and take the colour of the new category; the highlighted
// text is never searched again.
func (c *Controller) UpdateAnnotation(ctx context.Context, id string, update domain.AnnotationUpdate) (domain.Annotation, error) {
	c.mu.Lock()
	if c.indexOf(id) < 0 {
		defer c.unlock()
		return domain.Annotation{}, c.fail("update_annotation", ErrNotTracked)
	}
	if update.Category != nil && strings.TrimSpace(*update.Category) == "" {
		defer c.unlock()
		return domain.Annotation{}, c.fail("update_annotation", &ValidationError{Field: "category", Message: "cannot be blank"})
	}
	if update.Subcategory != nil && strings.TrimSpace(*update.Subcategory) == "" {
		defer c.unlock()
		return domain.Annotation{}, c.fail("update_annotation", &ValidationError{Field: "subcategory", Message: "cannot be blank"})
	}
	t, callCtx, done := c.issue(ctx)
	c.unlock()
	defer done()

	updated, err := c.backend.UpdateAnnotation(callCtx, id, update)

	c.mu.Lock()
	defer c.unlock()
	if !c.current(t) {
		return domain.Annotation{}, c.stale("update_annotation", t)
	}
	if err != nil {
		return domain.Annotation{}, c.fail("update_annotation", err)
	}
	i := c.indexOf(id)
	if i < 0 {
		// Deleted while the update was in flight.
		return domain.Annotation{}, c.stale("update_annotation", t)
	}
	c.confirmed()

	ranges := make([]overlay.Range, 0)
	for _, deco := range c.surface.HighlightsFor(id) {
		ranges = append(ranges, deco.Range())
	}
	if len(ranges) == 0 {
		ranges = Resolve(c.surface.Read(), c.annotations[i])
	}
	c.annotations[i] = updated.Clone()
	c.surface.RemoveHighlight(id)
	color := c.palette.ColorFor(updated.Category)
	for _, r := range ranges {
		c.surface.AddHighlight(r.Start, r.End, color, id)
	}
	return updated.Clone(), nil
}

// DeleteAnnotation removes a tracked annotation and its highlights.
func (c *Controller) DeleteAnnotation(ctx context.Context, id string) error {
	c.mu.Lock()
	if c.indexOf(id) < 0 {
		defer c.unlock()
		return c.fail("delete_annotation", ErrNotTracked)
	}
	t, callCtx, done := c.issue(ctx)
	c.unlock()
	defer done()

	err := c.backend.DeleteAnnotation(callCtx, id)

	c.mu.Lock()
	defer c.unlock()
	if !c.current(t) {
		return c.stale("delete_annotation", t)
	}
	if err != nil {
		return c.fail("delete_annotation", err)
	}
	c.confirmed()
	c.untrack(id)
	return nil
}

// DeleteAll removes every annotation of the displayed article.
func (c *Controller) DeleteAll(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Loaded {
		defer c.unlock()
		return c.fail("delete_all", &ValidationError{Field: "article", Message: "no article loaded"})
	}
	t, callCtx, done := c.issue(ctx)
	c.unlock()
	defer done()

	err := c.backend.DeleteArticleAnnotations(callCtx, t.articleID)

	c.mu.Lock()
	defer c.unlock()
	if !c.current(t) {
		return c.stale("delete_all", t)
	}
	if err != nil {
		return c.fail("delete_all", err)
	}
	c.confirmed()
	// The list may have changed while the call was in flight; remove what
	// is tracked now.
	for _, a := range c.annotations {
		c.surface.RemoveHighlight(a.ID)
	}
	c.annotations = nil
	c.surface.ClearHighlights()
	return nil
}

// untrack drops id from the list and the surface. Callers hold mu.
func (c *Controller) untrack(id string) {
	if i := c.indexOf(id); i >= 0 {
		c.annotations = append(c.annotations[:i], c.annotations[i+1:]...)
	}
	c.surface.RemoveHighlight(id)
}

// BulkAnalyze asks the backend for machine-suggested annotations and adds
// them to the current list.
func (c *Controller) BulkAnalyze(ctx context.Context) ([]domain.Annotation, error) {
	c.mu.Lock()
	if c.state != Loaded {
		defer c.unlock()
		return nil, c.fail("bulk_analyze", &ValidationError{Field: "article", Message: "no article loaded"})
	}
	t, callCtx, done := c.issue(ctx)
	c.unlock()
	defer done()

	found, err := c.backend.AnalyzeArticle(callCtx, t.articleID)

	c.mu.Lock()
	defer c.unlock()
	if !c.current(t) {
		return nil, c.stale("bulk_analyze", t)
	}
	if err != nil {
		return nil, c.fail("bulk_analyze", err)
	}
	c.confirmed()
	added := make([]domain.Annotation, 0, len(found))
	for _, a := range found {
		c.track(a.Clone(), t.edits)
		added = append(added, a.Clone())
	}
	c.log.Info().Str("article_id", t.articleID).Int("added", len(added)).Msg("analysis applied")
	return added, nil
}

// AddComment attaches a comment to a tracked annotation.
func (c *Controller) AddComment(ctx context.Context, annotationID, text string) (domain.Comment, error) {
	c.mu.Lock()
	if c.indexOf(annotationID) < 0 {
		defer c.unlock()
		return domain.Comment{}, c.fail("add_comment", ErrNotTracked)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		defer c.unlock()
		return domain.Comment{}, c.fail("add_comment", &ValidationError{Field: "comment_text", Message: "cannot be blank"})
	}
	input := domain.NewComment{AnnotationID: annotationID, User: c.user, Text: text}
	t, callCtx, done := c.issue(ctx)
	c.unlock()
	defer done()

	created, err := c.backend.CreateComment(callCtx, input)

	c.mu.Lock()
	defer c.unlock()
	if !c.current(t) {
		return domain.Comment{}, c.stale("add_comment", t)
	}
	if err != nil {
		return domain.Comment{}, c.fail("add_comment", err)
	}
	c.confirmed()
	if i := c.indexOf(annotationID); i >= 0 {
		c.annotations[i].Comments = append(c.annotations[i].Comments, created)
	}
	return created, nil
}

// DeleteComment removes a comment from a tracked annotation.
func (c *Controller) DeleteComment(ctx context.Context, annotationID, commentID string) error {
	c.mu.Lock()
	if c.indexOf(annotationID) < 0 {
		defer c.unlock()
		return c.fail("delete_comment", ErrNotTracked)
	}
	t, callCtx, done := c.issue(ctx)
	c.unlock()
	defer done()

	err := c.backend.DeleteComment(callCtx, annotationID, commentID)

	c.mu.Lock()
	defer c.unlock()
	if !c.current(t) {
		return c.stale("delete_comment", t)
	}
	if err != nil {
		return c.fail("delete_comment", err)
	}
	c.confirmed()
	if i := c.indexOf(annotationID); i >= 0 {
		comments := c.annotations[i].Comments[:0]
		for _, cm := range c.annotations[i].Comments {
			if cm.ID != commentID {
				comments = append(comments, cm)
			}
		}
		c.annotations[i].Comments = comments
	}
	return nil
}

// Edit applies an in-place correction to the displayed text. Highlights and
// the pending selection move with the text they cover; offsets returned by
// calls issued before the edit are moved through it when they arrive.
func (c *Controller) Edit(from, to int, insert string) error {
	c.mu.Lock()
	defer c.unlock()
	if c.state == Idle {
		return ErrNoArticle
	}
	mapping, ok := c.surface.Edit(from, to, insert)
	if !ok {
		return ErrNoArticle
	}
	c.edits = append(c.edits, mapping...)
	if c.pending != nil {
		if moved, ok := c.moveSelection(*c.pending, mapping); ok {
			c.pending = &moved
		} else {
			c.pending = nil
		}
	}
	c.log.Debug().Str("article_id", c.article.ID).Int("edits", len(c.edits)).Msg("document edited")
	return nil
}

// moveSelection maps sel through m over the displayed text. It reports false
// when the selected text was deleted. Callers hold mu.
func (c *Controller) moveSelection(sel overlay.Selection, m overlay.Mapping) (overlay.Selection, bool) {
	if len(m) == 0 {
		return sel, true
	}
	start, end := m.Map(sel.Start, 1), m.Map(sel.End, -1)
	if start >= end {
		return overlay.Selection{}, false
	}
	sel.Start, sel.End = start, end
	sel.Text = c.surface.Slice(start, end)
	return sel, true
}
