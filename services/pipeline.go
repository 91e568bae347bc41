package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"affiliate-poster/affiliate/aliexpress"
	"affiliate-poster/models"
	"affiliate-poster/storage"
	"affiliate-poster/utils"
)

// ProductSearcher finds products for a query. An empty result with a nil
// error means nothing matched; an error means the query failed.
type ProductSearcher interface {
	Search(ctx context.Context, q aliexpress.Query) ([]models.Product, error)
}

// ReviewGenerator writes review text for a product.
type ReviewGenerator interface {
	Generate(ctx context.Context, p models.Product) (string, error)
}

// QuerySource yields the next query to run.
type QuerySource interface {
	Next() aliexpress.Query
}

// PostStore persists rendered posts.
type PostStore interface {
	storage.PostWriter
	Exists(fileName string) bool
}

// Pipeline drives one batch run: search, generate, write, record.
type Pipeline struct {
	RunID      string
	Target     int
	MaxQueries int

	Queries   QuerySource
	Searcher  ProductSearcher
	Generator ReviewGenerator
	Renderer  *Renderer
	Ledger    storage.Ledger
	Posts     PostStore
	Logger    *utils.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Run loops until Target posts are written or MaxQueries queries have been
// issued. The returned report is never nil; a non-nil error means the run
// stopped early on a storage failure or cancellation.
func (p *Pipeline) Run(ctx context.Context) (*models.RunReport, error) {
	report := &models.RunReport{RunID: p.RunID, StartedAt: p.now(), Target: p.Target}
	defer func() { report.FinishedAt = p.now() }()

	ids, err := p.Ledger.Load(ctx)
	if err != nil {
		return report, fmt.Errorf("pipeline: load ledger: %w", err)
	}
	posted := utils.NewIDSet(ids...)
	p.Logger.Info("[pipeline] Ledger holds %d posted products; target %d new post(s)", posted.Size(), p.Target)

	for report.Posted < p.Target && report.Queries < p.MaxQueries {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		q := p.Queries.Next()
		report.Queries++
		report.Terms = append(report.Terms, q.String())
		p.Logger.Info("[pipeline] Query %d/%d: %s", report.Queries, p.MaxQueries, q)

		products, err := p.Searcher.Search(ctx, q)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			report.FailedQueries++
			p.Logger.Error("[pipeline] Query %q failed: %v", q.String(), err)
			continue
		}
		if len(products) == 0 {
			report.EmptyResults++
			p.Logger.Warn("[pipeline] No products found for %q", q.String())
			continue
		}

		for _, prod := range products {
			if report.Posted >= p.Target {
				break
			}
			if err := p.publish(ctx, prod, posted, report); err != nil {
				return report, err
			}
		}
	}

	if report.Posted < p.Target {
		p.Logger.Warn("[pipeline] Stopped after %d queries with %d/%d posts", report.Queries, report.Posted, p.Target)
	}
	return report, nil
}

func (p *Pipeline) publish(ctx context.Context, prod models.Product, posted *utils.IDSet, report *models.RunReport) error {
	id := strings.TrimSpace(prod.ID.String())
	if id == "" {
		report.Skipped++
		p.Logger.Warn("[pipeline] Skipping product without id: %q", prod.Title)
		return nil
	}
	prod.ID = models.ProductID(id)

	if posted.Contains(id) {
		report.Duplicates++
		p.Logger.Debug("[pipeline] Already posted: %s", id)
		return nil
	}

	date := p.now()
	fileName := p.Renderer.FileName(prod, date)
	if err := storage.CheckFileName(fileName); err != nil {
		report.Skipped++
		p.Logger.Warn("[pipeline] Skipping product %q: %v", id, err)
		return nil
	}
	if p.Posts.Exists(fileName) {
		return p.existing(ctx, prod, fileName, posted, report)
	}

	p.Logger.Info("[pipeline] Selected product %s: %s", id, prod.Title)
	review, err := p.Generator.Generate(ctx, prod)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.Logger.Warn("[pipeline] Review generation failed for %s, using fallback: %v", id, err)
		review = ""
	}

	post := p.Renderer.Render(prod, review, date)
	path, err := p.Posts.Write(post)
	if errors.Is(err, storage.ErrPostExists) {
		return p.existing(ctx, prod, post.FileName, posted, report)
	}
	if errors.Is(err, storage.ErrInvalidFileName) {
		report.Skipped++
		p.Logger.Warn("[pipeline] Skipping product %q: %v", id, err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("pipeline: write post %s: %w", id, err)
	}

	// The post is on disk; a failure here leaves it unrecorded.
	if err := p.Ledger.Record(ctx, prod.ID); err != nil {
		return fmt.Errorf("pipeline: record %s after writing %s: %w", id, path, err)
	}
	posted.Add(id)

	report.Posted++
	report.Files = append(report.Files, path)
	if post.Fallback {
		report.Fallbacks++
	}
	p.Logger.Info("[pipeline] Post created: %s (%q, %s)", path, post.Title, post.Date.Format(dateLayout))
	return nil
}

// existing handles a post file that is already on disk. When the name
// carries the product id the file is that product's post from an earlier
// run that crashed before recording, so the id is recorded now.
func (p *Pipeline) existing(ctx context.Context, prod models.Product, fileName string, posted *utils.IDSet, report *models.RunReport) error {
	report.Duplicates++
	if !strings.HasSuffix(fileName, "-"+prod.ID.String()+".md") {
		p.Logger.Warn("[pipeline] %s already exists, skipping product %s", fileName, prod.ID)
		return nil
	}

	p.Logger.Warn("[pipeline] %s already exists but %s was not recorded, recording it", fileName, prod.ID)
	if err := p.Ledger.Record(ctx, prod.ID); err != nil {
		return fmt.Errorf("pipeline: record %s: %w", prod.ID, err)
	}
	posted.Add(prod.ID.String())
	return nil
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}
