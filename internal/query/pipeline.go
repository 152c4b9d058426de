package query

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// BuildPipeline composes stages into one ordered aggregation pipeline,
// dropping "no stage" (nil) entries. The same assembled pipeline must back
// both the count pass and the data pass of a listing query so the reported
// total always matches the retrievable record set.
func BuildPipeline(stages ...bson.D) mongo.Pipeline {
	pipeline := make(mongo.Pipeline, 0, len(stages))
	for _, stage := range stages {
		if stage != nil {
			pipeline = append(pipeline, stage)
		}
	}
	return pipeline
}

// WithCount returns a copy of the pipeline terminated by a count stage.
func WithCount(pipeline mongo.Pipeline) mongo.Pipeline {
	out := make(mongo.Pipeline, len(pipeline), len(pipeline)+1)
	copy(out, pipeline)
	return append(out, bson.D{{Key: "$count", Value: "total"}})
}

// WithPage returns a copy of the pipeline with skip/limit applied followed
// by the owner join, i.e. the data pass of a listing query.
func WithPage(pipeline mongo.Pipeline, skip, limit int64) mongo.Pipeline {
	out := make(mongo.Pipeline, len(pipeline), len(pipeline)+5)
	copy(out, pipeline)
	out = append(out,
		bson.D{{Key: "$skip", Value: skip}},
		bson.D{{Key: "$limit", Value: limit}},
	)
	return append(out, OwnerLookupStages()...)
}
