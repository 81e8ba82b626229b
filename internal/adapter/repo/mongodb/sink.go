// Package mongodb persists analysis results into scan documents.
//
// Results land as a partial update of one vulnerability entry nested two
// arrays deep in its scan document, addressed with array filters. Writes are
// idempotent; re-analyzing a job overwrites the same fields.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-vuln-analyzer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-vuln-analyzer/internal/domain"
	obsctx "github.com/fairyhunter13/ai-vuln-analyzer/internal/observability"
)

const scansCollection = "scans"

// vulnPath prefixes every updated field so the write targets the one
// vulnerability entry selected by the array filters.
const vulnPath = "dependencies.$[dep].vulnerabilities.$[vuln]."

// MongoCollection is a minimal subset of mongo.Collection used by the sink
// for easy testing.
type MongoCollection interface {
	UpdateOne(ctx context.Context, filter any, update any, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

// Sink records analysis results on scan documents in MongoDB.
type Sink struct {
	Client *mongo.Client
	Scans  MongoCollection
}

// NewSink constructs a Sink writing to the scans collection of the given
// database.
func NewSink(client *mongo.Client, database string) *Sink {
	return &Sink{Client: client, Scans: client.Database(database).Collection(scansCollection)}
}

// Record attaches the analysis result to the vulnerability addressed by ref.
// Empty fields are left untouched so a partial analysis never erases data
// from an earlier run; the analysis timestamp is always stamped. It reports
// false when no scan matched or the write failed, and never raises storage
// faults to the caller.
func (s *Sink) Record(ctx domain.Context, ref domain.JobRef, res domain.AnalysisResult) bool {
	tracer := otel.Tracer("repo.scans")
	ctx, span := tracer.Start(ctx, "scans.RecordAnalysis")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "mongodb"),
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.mongodb.collection", scansCollection),
	)

	log := obsctx.LoggerFromContext(ctx)
	log.Info("updating analysis result",
		slog.String("scan_id", ref.ScanID),
		slog.String("package", ref.PackageName),
		slog.String("vulnerability", ref.VulnerabilityID))

	set := bson.M{}
	if res.Description != nil && *res.Description != "" {
		set[vulnPath+"aiGeneratedDescription"] = *res.Description
	}
	if res.Severity != nil && *res.Severity != "" {
		set[vulnPath+"aiDeterminedSeverity"] = *res.Severity
	}
	if res.Confidence != nil {
		set[vulnPath+"aiSeverityConfidence"] = *res.Confidence
	}
	if len(res.Factors) > 0 {
		set[vulnPath+"aiSeverityFactors"] = res.Factors
	}
	if res.Error != nil && *res.Error != "" {
		set[vulnPath+"aiAnalysisError"] = *res.Error
	}
	set[vulnPath+"aiAnalysisTimestamp"] = time.Now().UTC()

	opts := options.Update().SetArrayFilters(options.ArrayFilters{
		Filters: []any{
			bson.M{"dep.packageName": ref.PackageName},
			bson.M{"vuln.id": ref.VulnerabilityID},
		},
	})

	result, err := s.Scans.UpdateOne(ctx, bson.M{"_id": ref.ScanID}, bson.M{"$set": set}, opts)
	if err != nil {
		log.Error("mongodb error updating analysis", slog.Any("error", err))
		observability.RecordStoreUpdate("error")
		return false
	}

	if result.MatchedCount == 0 {
		log.Warn("no scan matched for analysis update")
		observability.RecordStoreUpdate("unmatched")
		return false
	}
	if result.ModifiedCount == 0 {
		// The document exists and may already carry this result.
		log.Warn("scan matched but nothing changed")
		observability.RecordStoreUpdate("unchanged")
		return true
	}

	log.Info("analysis result saved")
	observability.RecordStoreUpdate("updated")
	return true
}

// Ping verifies the store is reachable.
func (s *Sink) Ping(ctx domain.Context) error {
	if err := s.Client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("op=mongodb.Ping: %w", err)
	}
	return nil
}

// Close releases the client's connection pool.
func (s *Sink) Close(ctx context.Context) error {
	if s.Client == nil {
		return nil
	}
	if err := s.Client.Disconnect(ctx); err != nil {
		return fmt.Errorf("op=mongodb.Close: %w", err)
	}
	slog.Info("mongodb connection closed")
	return nil
}
