package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lumenreach/visibility-cli/internal/manualstore"
	"github.com/lumenreach/visibility-cli/internal/model"
	"github.com/lumenreach/visibility-cli/pkg/notion"
	"github.com/lumenreach/visibility-cli/pkg/wikidata"
)

// GateResult is the outcome of the publish gate.
type GateResult struct {
	Notability *model.NotabilityAssessment
	Entity     wikidata.Entity
	CanPublish bool
	Published  bool
	QID        string
	Stored     *model.StoredManualEntity
	Rejection  string
}

// PublishGate assesses notability, assembles the candidate entity, attempts
// the publish when eligible, and always persists a manual-review snapshot.
// Gate failures never set error status on the business; the orchestrator
// returns it to crawled.
func (p *Pipeline) PublishGate(ctx context.Context, business *model.Business, allowPublish bool) (*GateResult, error) {
	log := zap.L().With(zap.String("business_id", business.ID))

	notability, err := AssessNotability(ctx, business, p.cfg, p.search, p.anthropic)
	if err != nil {
		return nil, eris.Wrap(err, "gate: notability")
	}

	// The full entity is assembled regardless of eligibility so manual
	// storage always receives a complete snapshot.
	entity := AssembleEntity(business, p.mapping)

	gate := &GateResult{
		Notability: notability,
		Entity:     entity,
		CanPublish: p.canPublish(notability, allowPublish),
	}

	if gate.CanPublish {
		p.attemptPublish(ctx, business, entity, gate, log)
	} else {
		log.Info("gate: not eligible for auto-publish",
			zap.Bool("is_notable", notability.IsNotable),
			zap.Float64("confidence", notability.Confidence),
			zap.Bool("allow_publish", allowPublish),
		)
	}

	// Manual fallback storage is the durability guarantee: every assembled
	// entity lands here, published or not.
	stored, storeErr := p.manual.Save(manualstore.Snapshot{
		Business:   business,
		Entity:     &entity,
		Notability: *notability,
		CanPublish: gate.CanPublish,
		Reason:     storageReason(gate),
	})
	if storeErr != nil {
		return gate, eris.Wrap(storeErr, "gate: manual storage")
	}
	gate.Stored = stored

	p.notifyReviewBoard(ctx, business, gate, log)

	return gate, nil
}

// canPublish applies the eligibility policy. Notable entities must clear the
// publish threshold; non-notable ones are evaluated against the looser review
// threshold so borderline cases queue for review instead of dropping out.
func (p *Pipeline) canPublish(notability *model.NotabilityAssessment, allowPublish bool) bool {
	if !allowPublish {
		return false
	}
	if notability.IsNotable {
		return notability.Confidence >= p.cfg.Pipeline.PublishThreshold
	}
	return notability.Confidence >= p.cfg.Pipeline.ReviewThreshold
}

// attemptPublish calls the publisher exactly once. Failures are recorded on
// the gate result, never retried, and never escalate to error status.
func (p *Pipeline) attemptPublish(ctx context.Context, business *model.Business, entity wikidata.Entity, gate *GateResult, log *zap.Logger) {
	pubCtx := ctx
	if secs := p.cfg.Wikidata.TimeoutSecs; secs > 0 {
		var cancel context.CancelFunc
		pubCtx, cancel = context.WithTimeout(ctx, time.Duration(secs)*time.Second)
		defer cancel()
	}

	resp, err := p.wikidata.PublishEntity(pubCtx, entity, p.cfg.Wikidata.Production)
	if err != nil {
		gate.Rejection = (&PublisherRejectionError{BusinessID: business.ID, Reason: err.Error()}).Error()
		log.Warn("gate: publish failed", zap.Error(err))
		return
	}
	if !resp.Success {
		gate.Rejection = (&PublisherRejectionError{BusinessID: business.ID, Reason: resp.Error}).Error()
		log.Warn("gate: publisher rejected entity", zap.String("reason", resp.Error))
		return
	}

	publishedAt := time.Now().UTC()
	record := &model.WikidataEntity{
		BusinessID:      business.ID,
		QID:             resp.QID,
		EntityData:      entity,
		PublishedTo:     publishTarget(p.cfg.Wikidata.Production),
		EnrichmentLevel: "basic",
	}
	if err := p.store.CreateWikidataEntity(ctx, record); err != nil {
		// QID is assigned on the remote side; surface the row failure but
		// still treat the publish as successful for status purposes.
		log.Error("gate: failed to record published entity", zap.Error(err))
	}
	if err := p.store.SetPublished(ctx, business.ID, resp.QID, publishedAt); err != nil {
		gate.Rejection = eris.Wrap(err, "gate: set published").Error()
		log.Error("gate: failed to mark business published", zap.Error(err))
		return
	}

	gate.Published = true
	gate.QID = resp.QID
	business.Status = model.StatusPublished
	business.WikidataQID = &resp.QID
	business.WikidataPublishedAt = &publishedAt
	log.Info("gate: published", zap.String("qid", resp.QID), zap.Int("version", record.Version))
}

// PublishReviewed publishes a human-approved snapshot, walking the business
// through the same guarded transitions as the automatic gate. The snapshot is
// removed from manual storage on success.
func (p *Pipeline) PublishReviewed(ctx context.Context, stored model.StoredManualEntity, entity wikidata.Entity) (string, error) {
	business, err := p.store.GetBusiness(ctx, stored.BusinessID)
	if err != nil {
		return "", eris.Wrapf(err, "pipeline: load business %s", stored.BusinessID)
	}
	if business.Status != model.StatusCrawled {
		return "", eris.Errorf("pipeline: business %s is %s, manual publish requires crawled", business.ID, business.Status)
	}

	// generating marks the attempt in progress before the publisher is called.
	if err := p.transition(ctx, business, model.StatusCrawled, model.StatusGenerating); err != nil {
		return "", err
	}

	log := zap.L().With(zap.String("business_id", business.ID))

	pubCtx := ctx
	if secs := p.cfg.Wikidata.TimeoutSecs; secs > 0 {
		var cancel context.CancelFunc
		pubCtx, cancel = context.WithTimeout(ctx, time.Duration(secs)*time.Second)
		defer cancel()
	}
	resp, err := p.wikidata.PublishEntity(pubCtx, entity, p.cfg.Wikidata.Production)
	if err != nil || !resp.Success {
		if revertErr := p.transition(ctx, business, model.StatusGenerating, model.StatusCrawled); revertErr != nil {
			log.Error("pipeline: failed to return business to crawled", zap.Error(revertErr))
		}
		if err != nil {
			return "", eris.Wrap(err, "pipeline: publish reviewed entity")
		}
		return "", &PublisherRejectionError{BusinessID: business.ID, Reason: resp.Error}
	}

	publishedAt := time.Now().UTC()
	if err := p.store.CreateWikidataEntity(ctx, &model.WikidataEntity{
		BusinessID:      business.ID,
		QID:             resp.QID,
		EntityData:      entity,
		PublishedTo:     publishTarget(p.cfg.Wikidata.Production),
		EnrichmentLevel: "basic",
	}); err != nil {
		log.Error("pipeline: failed to record published entity", zap.Error(err))
	}
	if err := p.store.SetPublished(ctx, business.ID, resp.QID, publishedAt); err != nil {
		return "", eris.Wrap(err, "pipeline: set published")
	}
	business.Status = model.StatusPublished
	business.WikidataQID = &resp.QID
	business.WikidataPublishedAt = &publishedAt

	if err := p.manual.Delete(stored); err != nil {
		log.Warn("pipeline: published but failed to remove snapshot", zap.Error(err))
	}

	log.Info("pipeline: manually published", zap.String("qid", resp.QID))
	return resp.QID, nil
}

func (p *Pipeline) notifyReviewBoard(ctx context.Context, business *model.Business, gate *GateResult, log *zap.Logger) {
	if p.notion == nil || p.cfg.Notion.ReviewDB == "" || gate.Published {
		return
	}
	card := notion.ReviewCard{
		BusinessName: targetName(business),
		BusinessID:   business.ID,
		CanPublish:   gate.CanPublish,
		Confidence:   gate.Notability.Confidence,
		Reason:       storageReason(gate),
	}
	if err := p.notion.CreateReviewCard(ctx, p.cfg.Notion.ReviewDB, card); err != nil {
		log.Warn("gate: review board update failed", zap.Error(err))
	}
}

func storageReason(gate *GateResult) string {
	switch {
	case gate.Published:
		return "published"
	case gate.Rejection != "":
		return gate.Rejection
	default:
		return gate.Notability.Recommendation
	}
}

func publishTarget(production bool) string {
	if production {
		return "www.wikidata.org"
	}
	return "test.wikidata.org"
}
