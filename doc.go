// Package vecsearch provides similarity search over swappable vector backends.
//
// A Service validates records and queries, forwards them to a backend and
// applies metadata filters, so the same caller code runs against an
// in-process exact index or a hosted vector-index service.
//
// # Quick Start
//
// Local mode:
//
//	ctx := context.Background()
//	b, _ := local.New(384, distance.MetricCosine)
//	svc, _ := vecsearch.New(b)
//	defer svc.Close()
//
// Remote mode:
//
//	client, _ := remote.NewClient("https://vectors.example.com", func(o *remote.Options) {
//	    o.APIKey = os.Getenv("VECSEARCH_API_KEY")
//	})
//	b, _ := remote.OpenOrCreate(ctx, client, "smart-contracts", 384, distance.MetricCosine)
//	svc, _ := vecsearch.New(b)
//
// # Upserting
//
// Records with an existing ID replace the stored vector and metadata:
//
//	res, err := svc.UpsertBatch(ctx, []model.Record{
//	    model.NewRecord("erc20-a", vec).WithMetadata("type", metadata.String("ERC-20")).Build(),
//	})
//	if err != nil {
//	    // the backend failed as a whole (unreachable, rejected credentials)
//	}
//	for _, item := range res.Errors {
//	    // per-record failures; the other records were stored
//	}
//
// # Querying
//
// Matches are ordered by ascending Distance for every metric. Score carries
// the metric's native value (cosine similarity, dot product or squared L2):
//
//	matches, _ := svc.Query(ctx, query, 5, nil)
//
//	// Filtered:
//	fs := metadata.NewFilterSet(metadata.Eq("type", metadata.String("ERC-1155")))
//	matches, _ = svc.Query(ctx, query, 1, fs)
//
//	// Fluent:
//	best, _ := svc.Search(query).Filter(fs).First(ctx)
//
// Backends that evaluate filters themselves receive them directly. For the
// others the service over-fetches, filters and widens the fetch until k
// matches survive or the backend is exhausted.
package vecsearch
