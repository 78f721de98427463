// Package pipeline orchestrates polling, conversion, and publishing.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/inkpipe/inkpipe/internal/domain"
	"github.com/inkpipe/inkpipe/internal/observability"
	"github.com/inkpipe/inkpipe/internal/state"
)

type mode string

const (
	modeMarkdown mode = "markdown"
	modeMindmap  mode = "mindmap"
	modeAgentic  mode = "agentic"
)

// Prompts carries the resolved prompt overrides for each concern. Empty
// fields fall back to the backend's defaults.
type Prompts struct {
	Markdown string
	Mindmap  string
	Routing  string
}

// Processor drives documents through the discover, convert, publish, record
// cycle. A document is marked processed only after its artifact has been
// written; failures on one document never stop the iteration, but ledger
// errors abort it.
type Processor struct {
	connector    domain.Connector
	store        *state.Store
	backend      domain.Backend
	markdownSink domain.OutputHandler
	mindmapSink  domain.MindmapHandler
	hashtags     []string
	prompts      Prompts
	mode         mode
	logger       *observability.Logger
	wake         <-chan struct{}
}

// NewMarkdownProcessor builds a processor that converts every new document
// to Markdown.
func NewMarkdownProcessor(connector domain.Connector, store *state.Store, backend domain.Backend, sink domain.OutputHandler, prompts Prompts, logger *observability.Logger) (*Processor, error) {
	if sink == nil {
		return nil, domain.ConfigError("markdown processor requires an output handler", nil)
	}
	return newProcessor(modeMarkdown, connector, store, backend, sink, nil, nil, prompts, logger)
}

// NewMindmapProcessor builds a processor that extracts a mindmap from every
// new document.
func NewMindmapProcessor(connector domain.Connector, store *state.Store, backend domain.Backend, sink domain.MindmapHandler, prompts Prompts, logger *observability.Logger) (*Processor, error) {
	if sink == nil {
		return nil, domain.ConfigError("mindmap processor requires a mindmap handler", nil)
	}
	return newProcessor(modeMindmap, connector, store, backend, nil, sink, nil, prompts, logger)
}

// NewAgenticProcessor builds a processor that routes each document to the
// markdown or mindmap pipeline based on filename hashtags and, failing that,
// the backend's classification.
func NewAgenticProcessor(connector domain.Connector, store *state.Store, backend domain.Backend, markdownSink domain.OutputHandler, mindmapSink domain.MindmapHandler, hashtags []string, prompts Prompts, logger *observability.Logger) (*Processor, error) {
	if markdownSink == nil || mindmapSink == nil {
		return nil, domain.ConfigError("agentic processor requires both output handlers", nil)
	}
	if len(hashtags) == 0 {
		hashtags = []string{"mm", "mindmap"}
	}
	return newProcessor(modeAgentic, connector, store, backend, markdownSink, mindmapSink, hashtags, prompts, logger)
}

func newProcessor(m mode, connector domain.Connector, store *state.Store, backend domain.Backend, markdownSink domain.OutputHandler, mindmapSink domain.MindmapHandler, hashtags []string, prompts Prompts, logger *observability.Logger) (*Processor, error) {
	if connector == nil {
		return nil, domain.ConfigError("processor requires a connector", nil)
	}
	if store == nil {
		return nil, domain.ConfigError("processor requires a state store", nil)
	}
	if backend == nil {
		return nil, domain.ConfigError("processor requires a conversion backend", nil)
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return &Processor{
		connector:    connector,
		store:        store,
		backend:      backend,
		markdownSink: markdownSink,
		mindmapSink:  mindmapSink,
		hashtags:     hashtags,
		prompts:      prompts,
		mode:         m,
		logger:       logger.WithComponent("processor"),
	}, nil
}

// SetWake installs a channel that cuts the sleep between iterations short.
// A nil channel disables wakeups.
func (p *Processor) SetWake(ch <-chan struct{}) {
	p.wake = ch
}

// RunOnce performs a single poll iteration and returns how many documents
// were newly processed. Per-document failures are logged and skipped;
// ledger failures abort the iteration.
func (p *Processor) RunOnce(ctx context.Context) (int, error) {
	logger := p.logger.WithRun(uuid.NewString())

	docs, err := p.connector.ListPDFs(ctx)
	if err != nil {
		return 0, err
	}
	logger.Debug().Int("documents", len(docs)).Msg("Listed source documents")

	processed := 0
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		done, err := p.store.HasProcessed(doc.Identifier)
		if err != nil {
			return processed, err
		}
		if done {
			logger.Debug().Str("document", doc.Name).Msg("Skipping already processed document")
			continue
		}

		if err := p.processDocument(ctx, logger, doc); err != nil {
			if isFatal(err) {
				return processed, err
			}
			logger.Error().Err(err).
				Str("document", doc.Name).
				Str("identifier", doc.Identifier).
				Msg("Failed to process document")
			continue
		}
		processed++
	}
	return processed, nil
}

// RunForever loops RunOnce on the given interval until the context is
// cancelled. Iteration-level failures are logged and the loop continues;
// ledger failures terminate the loop.
func (p *Processor) RunForever(ctx context.Context, interval time.Duration) error {
	p.logger.Info().Dur("interval", interval).Msg("Starting continuous processing loop")
	for {
		count, err := p.RunOnce(ctx)
		switch {
		case err != nil && errors.Is(err, context.Canceled):
			return err
		case err != nil && isFatal(err):
			return err
		case err != nil:
			p.logger.Error().Err(err).Msg("Iteration failed")
		default:
			p.logger.Info().Int("processed", count).Msg("Iteration complete")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.wake:
			p.logger.Debug().Msg("Woken early by filesystem event")
		case <-time.After(interval):
		}
	}
}

func (p *Processor) processDocument(ctx context.Context, logger *observability.Logger, doc domain.Document) error {
	logger.Info().Str("document", doc.Name).Msg("Processing document")

	pdfBytes, err := p.connector.DownloadPDF(ctx, doc)
	if err != nil {
		return err
	}

	route := domain.RouteMarkdown
	switch p.mode {
	case modeMindmap:
		route = domain.RouteMindmap
	case modeAgentic:
		route = p.selectRoute(ctx, logger, doc, pdfBytes)
	}

	var location string
	switch route {
	case domain.RouteMindmap:
		m, err := p.backend.ExtractMindmap(ctx, doc, pdfBytes, p.prompts.Mindmap)
		if err != nil {
			return err
		}
		location, err = p.mindmapSink.WriteMindmap(ctx, doc, m)
		if err != nil {
			return err
		}
	default:
		markdown, err := p.backend.ConvertPDF(ctx, doc, pdfBytes, p.prompts.Markdown)
		if err != nil {
			return err
		}
		location, err = p.markdownSink.Write(ctx, doc, markdown, pdfBytes)
		if err != nil {
			return err
		}
	}

	if err := p.store.MarkProcessed(doc.Identifier, doc.Name); err != nil {
		return err
	}

	logger.Info().
		Str("document", doc.Name).
		Str("route", string(route)).
		Str("location", location).
		Msg("Document processed")
	return nil
}

// selectRoute decides between the markdown and mindmap pipelines. Hashtags
// in the document name win without a backend round trip; otherwise the
// backend classifies the document. Classification failures fall back to
// markdown so a flaky model never stalls the pipeline.
func (p *Processor) selectRoute(ctx context.Context, logger *observability.Logger, doc domain.Document, pdfBytes []byte) domain.Route {
	if hasMindmapHashtag(doc.Name, p.hashtags) {
		logger.Info().Str("document", doc.Name).Msg("Routing to mindmap pipeline via hashtag")
		return domain.RouteMindmap
	}

	answer, err := p.backend.ClassifyDocument(ctx, doc, pdfBytes, p.prompts.Routing)
	if err != nil {
		logger.Warn().Err(err).
			Str("document", doc.Name).
			Msg("Classification failed; defaulting to markdown")
		return domain.RouteMarkdown
	}
	if strings.Contains(strings.ToLower(answer), "mindmap") {
		return domain.RouteMindmap
	}
	return domain.RouteMarkdown
}

// hasMindmapHashtag reports whether the document name carries one of the
// configured routing tags, with or without the leading '#'.
func hasMindmapHashtag(name string, hashtags []string) bool {
	lowered := strings.ToLower(name)
	for _, tag := range hashtags {
		normalized := strings.TrimPrefix(strings.ToLower(tag), "#")
		if normalized == "" {
			continue
		}
		if strings.Contains(lowered, "#"+normalized) || strings.Contains(lowered, normalized) {
			return true
		}
	}
	return false
}

// isFatal reports whether an error must abort the iteration instead of
// being attributed to a single document. Ledger and configuration errors
// qualify; everything else is isolated.
func isFatal(err error) bool {
	var derr *domain.DomainError
	if errors.As(err, &derr) {
		return derr.Type == domain.ErrorTypeState || derr.Type == domain.ErrorTypeConfig
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
